package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	isPending() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Verify(ctx context.Context) error
	Cancel(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Theme(ctx context.Context, theme string) error
	Sessions(ctx context.Context) error
	Terminate(ctx context.Context, sessionID string) error
	TerminateAll(ctx context.Context) error
	Passwd(ctx context.Context) error
	TwoFactorSetup(ctx context.Context) error
	TwoFactorEnable(ctx context.Context) error
	TwoFactorDisable(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the GophClass CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits at end of input or when the user types "exit" or
// "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help             — show available commands
//	  - register         — create an account
//	  - login            — authenticate
//	  - exit | quit      — leave the program
//
//	Waiting for a second factor:
//	  - verify           — enter the authenticator code
//	  - cancel           — abandon the sign-in
//
//	Logged in:
//	  - whoami           — show the signed-in user
//	  - theme <name>     — switch the UI theme
//	  - passwd           — change the password
//	  - sessions         — list device sessions
//	  - terminate <id>   — end one device session
//	  - terminate-all    — end every other device session
//	  - 2fa-setup | 2fa-enable | 2fa-disable
//	  - logout           — log out
//
// Any errors returned by command handlers are ignored here; handlers print
// their own messages. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gc %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			switch {
			case a.isLoggedIn():
				printlnFn("Available commands: whoami, theme <light|dark>, passwd, sessions, terminate <id>, terminate-all, 2fa-setup, 2fa-enable, 2fa-disable, logout, exit")
			case a.isPending():
				printlnFn("Available commands: verify, cancel, exit")
			default:
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "verify":
			_ = a.Verify(ctx)

		case "cancel":
			_ = a.Cancel(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "theme":
			if len(args) != 1 {
				printlnFn("Usage: theme <light|dark>")
				continue
			}
			_ = a.Theme(ctx, args[0])

		case "sessions":
			_ = a.Sessions(ctx)

		case "terminate":
			if len(args) != 1 {
				printlnFn("Usage: terminate <session id>")
				continue
			}
			_ = a.Terminate(ctx, args[0])

		case "terminate-all":
			_ = a.TerminateAll(ctx)

		case "passwd":
			_ = a.Passwd(ctx)

		case "2fa-setup":
			_ = a.TwoFactorSetup(ctx)

		case "2fa-enable":
			_ = a.TwoFactorEnable(ctx)

		case "2fa-disable":
			_ = a.TwoFactorDisable(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
