// Package command parses free-text messages from customers and staff into a
// closed set of commands. Parsing is separate from dispatch: the router only
// decides what the sender meant, never what should happen.
package command

import (
	"strconv"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	Help
	Register
	Status
	Cancel
	LinkIdentity
	CallNext
	CallNumber
	Complete
	List
)

type Command struct {
	Kind   Kind
	Number int
	Code   string
	// Secret is the trailing shared-secret token on staff commands.
	Secret string
}

// Staff reports whether the command requires the staff shared secret.
func (c Command) Staff() bool {
	switch c.Kind {
	case CallNext, CallNumber, Complete, List:
		return true
	}
	return false
}

// Parse maps a message to a command. Unparseable input yields Unknown,
// which callers answer with usage text; there is no error path.
func Parse(text string) Command {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{Kind: Unknown}
	}
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	switch keyword {
	case "join", "register", "並ぶ":
		return Command{Kind: Register}
	case "受付":
		// 受付 alone registers; 受付 <code> links a form ticket.
		if len(args) == 0 {
			return Command{Kind: Register}
		}
		if isDigits(args[0]) {
			return Command{Kind: LinkIdentity, Code: args[0]}
		}
		return Command{Kind: Unknown}
	case "link":
		if len(args) >= 1 && isDigits(args[0]) {
			return Command{Kind: LinkIdentity, Code: args[0]}
		}
		return Command{Kind: Unknown}
	case "status", "状況", "何番":
		return Command{Kind: Status}
	case "cancel", "取消", "キャンセル":
		return Command{Kind: Cancel}
	case "help", "ヘルプ", "使い方":
		return Command{Kind: Help}
	case "next", "次":
		return Command{Kind: CallNext, Secret: firstOrEmpty(args)}
	case "list", "一覧":
		return Command{Kind: List, Secret: firstOrEmpty(args)}
	case "call", "呼出":
		return numberCommand(CallNumber, args)
	case "done", "完了":
		return numberCommand(Complete, args)
	}
	return Command{Kind: Unknown}
}

func numberCommand(kind Kind, args []string) Command {
	if len(args) == 0 {
		return Command{Kind: Unknown}
	}
	number, err := strconv.Atoi(args[0])
	if err != nil || number < 1 {
		return Command{Kind: Unknown}
	}
	cmd := Command{Kind: kind, Number: number}
	if len(args) > 1 {
		cmd.Secret = args[1]
	}
	return cmd
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
