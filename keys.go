package ctrdecrypt

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/connesc/ctrdecrypt/ctrutil"
)

var keyNamePattern = regexp.MustCompile(`(?i)^slot0x([0-9a-f]{2})(keyx|keyy|key)$`)

// LoadKeys reads key slot material into engine.
//
// Each line has the form "name = HEXVALUE", where name is slot0xNNKeyX, slot0xNNKeyY or
// slot0xNNKey (normal key). Blank lines and lines starting with # are ignored. KeyX lines are
// applied before KeyY lines so that the order of the file does not matter.
func LoadKeys(input io.Reader, engine *Engine) (int, error) {
	type entry struct {
		slot int
		kind string
		key  []byte
	}
	var keyX, others []entry

	scanner := bufio.NewScanner(input)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return 0, fmt.Errorf("keys: line %d: expected name = value", lineNumber)
		}
		name := strings.TrimSpace(parts[0])
		match := keyNamePattern.FindStringSubmatch(name)
		if match == nil {
			log.WithField("name", name).Debug("Ignoring unknown key")
			continue
		}
		slot, _ := strconv.ParseInt(match[1], 16, 0)

		key, err := hex.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, fmt.Errorf("keys: line %d: %w", lineNumber, err)
		}

		e := entry{slot: int(slot), kind: strings.ToLower(match[2]), key: key}
		if e.kind == "keyx" {
			keyX = append(keyX, e)
		} else {
			others = append(others, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("keys: %w", err)
	}

	for _, e := range append(keyX, others...) {
		var err error
		switch e.kind {
		case "keyx":
			err = engine.SetKeyX(e.slot, e.key)
		case "keyy":
			err = engine.SetKeyY(e.slot, e.key)
		default:
			err = engine.SetNormalKey(e.slot, e.key)
		}
		if err != nil {
			return 0, fmt.Errorf("keys: %w", err)
		}
	}
	return len(keyX) + len(others), nil
}

// LoadKeyXFile reads a raw 16-byte KeyX, such as slot0x25KeyX.bin, into the given slot.
func LoadKeyXFile(input io.Reader, engine *Engine, slot int) error {
	keyX := make([]byte, 16)
	if err := ctrutil.NewReader(input).ReadSection(keyX, "KeyX"); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	if err := engine.SetKeyX(slot, keyX); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	return nil
}
