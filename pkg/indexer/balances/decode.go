package balances

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrDecode is matched by every payload decoding failure.
var ErrDecode = errors.New("balances: malformed event payload")

// DecodeError reports which field of which event kind did not match the expected layout.
// Index is -1 for arity mismatches.
type DecodeError struct {
	Kind   EventKind
	Index  int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %d: %s", e.Kind, e.Index, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// BalanceStatus says which part of the receiving account a repatriated reserve lands in.
type BalanceStatus string

const (
	StatusFree     BalanceStatus = "Free"
	StatusReserved BalanceStatus = "Reserved"
)

// AccountAmount is the payload of Endowed, Deposit, Reserved, Unreserved, Withdraw and Slash.
type AccountAmount struct {
	Account string
	Amount  *big.Int
}

// TransferPayload is (from, to, amount).
type TransferPayload struct {
	From   string
	To     string
	Amount *big.Int
}

// BalanceSetPayload is (account, free, reserved).
type BalanceSetPayload struct {
	Account  string
	Free     *big.Int
	Reserved *big.Int
}

// RepatriatedPayload is (from, to, amount, status).
type RepatriatedPayload struct {
	From   string
	To     string
	Amount *big.Int
	Status BalanceStatus
}

// fields reads a positional tuple of a known kind.
type fields struct {
	kind EventKind
	data []json.RawMessage
}

func newFields(kind EventKind, data []json.RawMessage, arity int) (fields, error) {
	if len(data) != arity {
		return fields{}, &DecodeError{
			Kind:   kind,
			Index:  -1,
			Reason: fmt.Sprintf("expected %d fields, got %d", arity, len(data)),
		}
	}
	return fields{kind: kind, data: data}, nil
}

func (f fields) fail(i int, format string, args ...any) error {
	return &DecodeError{Kind: f.kind, Index: i, Reason: fmt.Sprintf(format, args...)}
}

func (f fields) str(i int) (string, bool) {
	var s string
	if err := json.Unmarshal(f.data[i], &s); err != nil {
		return "", false
	}
	return s, true
}

// account decodes an account identifier: a non-empty JSON string.
func (f fields) account(i int) (string, error) {
	s, ok := f.str(i)
	if !ok {
		return "", f.fail(i, "account id must be a string, got %s", f.data[i])
	}
	if strings.TrimSpace(s) == "" {
		return "", f.fail(i, "account id is empty")
	}
	return s, nil
}

// amount decodes a non-negative integer given as a JSON number, a decimal string or a
// 0x-prefixed hex string. polkadot.js switches to hex once a u128 exceeds 2^53.
func (f fields) amount(i int) (*big.Int, error) {
	raw := strings.TrimSpace(string(f.data[i]))
	text := raw
	base := 10
	if strings.HasPrefix(raw, `"`) {
		s, ok := f.str(i)
		if !ok {
			return nil, f.fail(i, "invalid string %s", raw)
		}
		text = s
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			text, base = s[2:], 16
		}
	}
	if text == "" {
		return nil, f.fail(i, "amount is empty")
	}
	if text[0] == '-' {
		return nil, f.fail(i, "amount %s is negative", raw)
	}
	// big.Int.SetString tolerates a sign, so only bare digits reach it.
	if !onlyDigits(text, base) {
		return nil, f.fail(i, "amount %s is not an integer", raw)
	}
	n, ok := new(big.Int).SetString(text, base)
	if !ok {
		return nil, f.fail(i, "amount %s is not an integer", raw)
	}
	return n, nil
}

func onlyDigits(s string, base int) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return false
		}
	}
	return true
}

func (f fields) status(i int) (BalanceStatus, error) {
	s, ok := f.str(i)
	if !ok {
		return "", f.fail(i, "status must be a string, got %s", f.data[i])
	}
	switch strings.ToLower(s) {
	case "free":
		return StatusFree, nil
	case "reserved":
		return StatusReserved, nil
	}
	return "", f.fail(i, "unknown balance status %q", s)
}

// DecodeAccountAmount decodes the (account, amount) tuple shared by single-account kinds.
func DecodeAccountAmount(kind EventKind, data []json.RawMessage) (AccountAmount, error) {
	f, err := newFields(kind, data, 2)
	if err != nil {
		return AccountAmount{}, err
	}
	var p AccountAmount
	if p.Account, err = f.account(0); err != nil {
		return AccountAmount{}, err
	}
	if p.Amount, err = f.amount(1); err != nil {
		return AccountAmount{}, err
	}
	return p, nil
}

// DecodeTransfer decodes Transfer(from, to, amount).
func DecodeTransfer(data []json.RawMessage) (TransferPayload, error) {
	f, err := newFields(KindTransfer, data, 3)
	if err != nil {
		return TransferPayload{}, err
	}
	var p TransferPayload
	if p.From, err = f.account(0); err != nil {
		return TransferPayload{}, err
	}
	if p.To, err = f.account(1); err != nil {
		return TransferPayload{}, err
	}
	if p.Amount, err = f.amount(2); err != nil {
		return TransferPayload{}, err
	}
	return p, nil
}

// DecodeBalanceSet decodes BalanceSet(account, free, reserved).
func DecodeBalanceSet(data []json.RawMessage) (BalanceSetPayload, error) {
	f, err := newFields(KindBalanceSet, data, 3)
	if err != nil {
		return BalanceSetPayload{}, err
	}
	var p BalanceSetPayload
	if p.Account, err = f.account(0); err != nil {
		return BalanceSetPayload{}, err
	}
	if p.Free, err = f.amount(1); err != nil {
		return BalanceSetPayload{}, err
	}
	if p.Reserved, err = f.amount(2); err != nil {
		return BalanceSetPayload{}, err
	}
	return p, nil
}

// DecodeRepatriated decodes ReservRepatriated(from, to, amount, status).
func DecodeRepatriated(data []json.RawMessage) (RepatriatedPayload, error) {
	f, err := newFields(KindReservRepatriated, data, 4)
	if err != nil {
		return RepatriatedPayload{}, err
	}
	var p RepatriatedPayload
	if p.From, err = f.account(0); err != nil {
		return RepatriatedPayload{}, err
	}
	if p.To, err = f.account(1); err != nil {
		return RepatriatedPayload{}, err
	}
	if p.Amount, err = f.amount(2); err != nil {
		return RepatriatedPayload{}, err
	}
	if p.Status, err = f.status(3); err != nil {
		return RepatriatedPayload{}, err
	}
	return p, nil
}
