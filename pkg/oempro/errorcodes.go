package oempro

import (
	_ "embed"
	"fmt"
	"maps"
	"strings"
	"sync"

	"sigs.k8s.io/yaml"
)

const (
	// CodeSessionExpired is reported by every command when the session is invalid.
	CodeSessionExpired = 99998
	// CodeNotEnoughPrivileges is reported by every command the user may not run.
	CodeNotEnoughPrivileges = 99999
	// CodeEmailAlreadySubscribed is reported by Subscriber.Subscribe for duplicates.
	CodeEmailAlreadySubscribed = 9
)

// UnknownErrorMessage is the message for codes absent from the error table.
const UnknownErrorMessage = "Unknown error code"

//go:embed errorcodes.yaml
var errorCodesYAML []byte

type errorTable struct {
	Common   map[int]string            `json:"common"`
	Commands map[string]map[int]string `json:"commands"`
}

var loadErrorTable = sync.OnceValue(func() errorTable {
	t, err := parseErrorTable(errorCodesYAML)
	if err != nil {
		panic(err)
	}
	return t
})

func parseErrorTable(data []byte) (errorTable, error) {
	var t errorTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return errorTable{}, fmt.Errorf("failed to parse error table: %w", err)
	}
	return t, nil
}

// Message returns the human-readable text for the codes reported by a command.
// Multiple codes are joined with " / ".
func Message(command string, codes ...int) string {
	if len(codes) == 0 {
		return UnknownErrorMessage
	}

	t := loadErrorTable()
	msgs := make([]string, 0, len(codes))
	for _, code := range codes {
		msg, ok := t.Commands[command][code]
		if !ok {
			msg, ok = t.Common[code]
		}
		if !ok {
			msg = UnknownErrorMessage
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, " / ")
}

// Codes returns every code known for a command, common codes included.
func Codes(command string) map[int]string {
	t := loadErrorTable()
	out := maps.Clone(t.Common)
	maps.Copy(out, t.Commands[command])
	return out
}
