// Package txsize estimates serialized Solana transaction sizes for
// program instructions from a fixed wire-layout model. The arithmetic
// is pure and deterministic; all heuristic constants live in Config.
package txsize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/commercelabs/cuprof/schema"
)

// Transaction wire layout. A Solana transaction is signatures followed
// by a message: header, compact-length account key list, recent
// blockhash, and a compact-length instruction list.
const (
	signatureSize       = 64 // Ed25519 signature
	messageHeaderSize   = 3  // required/readonly-signed/readonly-unsigned counts
	compactArrayLength  = 1  // compact-u16, 1 byte for arrays under 128 items
	accountPubkeySize   = 32
	recentBlockhashSize = 32

	instructionsLength    = 1 // instruction count
	programIDIndex        = 1 // u8 index into the account list
	accountIndexesLength  = 1
	instructionDataLength = 1
	discriminatorSize     = 1

	optionDiscriminatorSize = 1 // Option<T> Some/None tag
	vecLengthSize           = 4 // Vec<T> u32 length prefix

	// MaxTransactionSize is Solana's hard transaction size limit,
	// the IPv6 minimum MTU minus network headers.
	MaxTransactionSize = 1232
)

// Config holds the tunable policy behind the size estimate.
type Config struct {
	// AssumedVecElems is the assumed average element count for Vec
	// arguments; actual lengths are not observable statically.
	AssumedVecElems int

	// MinSigners and MaxSigners clamp the signer estimate, and
	// AccountsPerSigner scales it with the account count.
	MinSigners        int
	MaxSigners        int
	AccountsPerSigner int

	// SizeMargin is the safety buffer subtracted from
	// MaxTransactionSize when capping estimates.
	SizeMargin int

	// ExtraWidths adds program-specific type widths on top of the
	// builtin primitive table.
	ExtraWidths map[string]int
}

// DefaultConfig returns the estimation policy used for the commerce
// program.
func DefaultConfig() Config {
	return Config{
		AssumedVecElems:   4,
		MinSigners:        1,
		MaxSigners:        3,
		AccountsPerSigner: 5,
		SizeMargin:        50,
	}
}

// Estimator computes transaction size estimates from a type-width
// table.
type Estimator struct {
	cfg    Config
	widths map[string]int
}

// NewEstimator builds an Estimator with the builtin primitive widths
// plus any cfg.ExtraWidths.
func NewEstimator(cfg Config) *Estimator {
	widths := map[string]int{
		"u8": 1, "u16": 2, "u32": 4, "u64": 8,
		"i8": 1, "i16": 2, "i32": 4, "i64": 8,
		"bool":   1,
		"Pubkey": 32,
		"pubkey": 32,
		// Program enums serialize as a single tag byte.
		"FeeType": 1,
		"Status":  1,
		// PolicyData: 1 byte policy_type + 100 bytes payload.
		"PolicyData": 101,
	}
	for k, v := range cfg.ExtraWidths {
		widths[k] = v
	}

	return &Estimator{cfg: cfg, widths: widths}
}

// TypeWidth resolves the serialized byte width of a type descriptor.
// Option, Vec, and fixed-array wrappers recurse into their element
// type; plain descriptors hit the width table, exact match first, then
// a case-insensitive substring fallback that tolerates namespaced
// spellings like pinocchio::pubkey::Pubkey. The longest matching key
// wins so overlapping table keys resolve deterministically.
func (e *Estimator) TypeWidth(desc string) (int, error) {
	desc = strings.TrimSpace(desc)

	if inner, ok := unwrap(desc, "Option<"); ok {
		w, err := e.TypeWidth(inner)
		if err != nil {
			return 0, err
		}

		return optionDiscriminatorSize + w, nil
	}

	if inner, ok := unwrap(desc, "Vec<"); ok {
		w, err := e.TypeWidth(inner)
		if err != nil {
			return 0, err
		}

		return vecLengthSize + e.cfg.AssumedVecElems*w, nil
	}

	if elem, n, ok := parseArray(desc); ok {
		w, err := e.TypeWidth(elem)
		if err != nil {
			return 0, err
		}

		return n * w, nil
	}

	if w, ok := e.widths[desc]; ok {
		return w, nil
	}

	if w, ok := e.substringWidth(desc); ok {
		return w, nil
	}

	return 0, fmt.Errorf("unknown type %q: no width mapping", desc)
}

// InstructionSize estimates the serialized transaction size for an
// instruction with the given account count and arguments, assuming a
// single-instruction transaction. The result never exceeds
// MaxTransactionSize minus the configured margin.
func (e *Estimator) InstructionSize(
	accounts int,
	args []schema.Field,
) (int, error) {
	size := e.signerEstimate(accounts) * signatureSize

	size += messageHeaderSize
	size += compactArrayLength
	size += accounts * accountPubkeySize
	size += recentBlockhashSize

	size += instructionsLength
	size += programIDIndex
	size += accountIndexesLength
	size += accounts // one u8 index per account

	data := discriminatorSize
	for _, arg := range args {
		w, err := e.TypeWidth(arg.Type)
		if err != nil {
			return 0, fmt.Errorf("argument %s: %w", arg.Name, err)
		}

		data += w
	}

	size += instructionDataLength + data

	if limit := MaxTransactionSize - e.cfg.SizeMargin; size > limit {
		return limit, nil
	}

	return size, nil
}

// signerEstimate guesses how many accounts sign the transaction: one
// per AccountsPerSigner accounts, rounded up, clamped to the
// configured bounds.
func (e *Estimator) signerEstimate(accounts int) int {
	per := e.cfg.AccountsPerSigner

	signers := (accounts + per - 1) / per
	if signers < e.cfg.MinSigners {
		signers = e.cfg.MinSigners
	}
	if signers > e.cfg.MaxSigners {
		signers = e.cfg.MaxSigners
	}

	return signers
}

// Table maps operation names to estimated transaction sizes.
type Table map[string]int

// BuildTable estimates a transaction size for every instruction.
func (e *Estimator) BuildTable(instrs []schema.Instruction) (Table, error) {
	t := make(Table, len(instrs))

	for _, inst := range instrs {
		size, err := e.InstructionSize(inst.Accounts, inst.Args)
		if err != nil {
			return nil, fmt.Errorf("instruction %s: %w", inst.Name, err)
		}

		t[inst.Name] = size
	}

	return t, nil
}

// Lookup returns the estimated size for an operation. An unknown
// operation is an error: it means the schema and the measurement
// stream have diverged.
func (t Table) Lookup(operation string) (int, error) {
	size, ok := t[operation]
	if !ok {
		known := make([]string, 0, len(t))
		for name := range t {
			known = append(known, name)
		}

		sort.Strings(known)

		return 0, fmt.Errorf(
			"no transaction size for operation %q (known operations: %s)",
			operation, strings.Join(known, ", "),
		)
	}

	return size, nil
}

func unwrap(desc, prefix string) (string, bool) {
	if strings.HasPrefix(desc, prefix) && strings.HasSuffix(desc, ">") {
		return strings.TrimSpace(desc[len(prefix) : len(desc)-1]), true
	}

	return "", false
}

// parseArray parses a fixed-array descriptor "[T; N]".
func parseArray(desc string) (string, int, bool) {
	if !strings.HasPrefix(desc, "[") || !strings.HasSuffix(desc, "]") {
		return "", 0, false
	}

	body := desc[1 : len(desc)-1]

	semi := strings.LastIndexByte(body, ';')
	if semi < 0 {
		return "", 0, false
	}

	n, err := strconv.Atoi(strings.TrimSpace(body[semi+1:]))
	if err != nil || n < 0 {
		return "", 0, false
	}

	return strings.TrimSpace(body[:semi]), n, true
}

func (e *Estimator) substringWidth(desc string) (int, bool) {
	lower := strings.ToLower(desc)

	best := ""
	width := 0

	for key, w := range e.widths {
		if !strings.Contains(lower, strings.ToLower(key)) {
			continue
		}

		if len(key) > len(best) || (len(key) == len(best) && key < best) {
			best, width = key, w
		}
	}

	return width, best != ""
}
