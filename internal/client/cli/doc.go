// Package cli provides the interactive GophClass command-line client.
//
// The App restores a stored session on start, then runs a REPL over the
// session controller and the account service. Sign-outs the user did not
// ask for (a refused refresh, a session ended from another device) are
// announced as soon as they happen, together with their reason.
//
// Key features:
//   - Register, login with an optional second factor, logout
//   - Profile, theme and password changes
//   - Two-factor enrolment
//   - Listing and ending device sessions
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
