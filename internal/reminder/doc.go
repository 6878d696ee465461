// Package reminder holds the reminder record model and the time expression
// parser.
//
// Times are epoch milliseconds on the wire and wall-clock times in the
// location of the "now" passed to Parse. There is no per-user timezone.
package reminder
