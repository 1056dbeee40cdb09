package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSource = `
extern crate alloc;

use shank::ShankInstruction;

#[repr(C, u8)]
#[derive(Clone, Debug, PartialEq, ShankInstruction)]
pub enum CommerceProgramInstruction {
    // Make Payment
    #[account(0, writable, signer, name = "payer")]
    #[account(1, writable, name = "payment")]
    #[account(2, signer, name = "operator_authority")]
    #[account(
        3,
        writable,
        name = "config",
        desc = "The MerchantOperatorConfig PDA"
    )]
    MakePayment {
        order_id: u32,
        amount: u64,
        bump: u8,
    } = 3,

    /// Clears a payment into settlement.
    #[account(0, writable, signer, name = "payer")]
    #[account(1, writable, name = "payment")]
    ClearPayment = 4,

    #[account(0, signer, name = "event_authority")]
    EmitEvent {} = 228,
}

pub enum Unrelated {
    A = 0,
}
`

func TestParseExtractsInstructions(t *testing.T) {
	instrs, err := Parse(sampleSource, DefaultConfig())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(instrs) != 2 {
		t.Fatalf("got %d instructions, want 2", len(instrs))
	}

	mp := instrs[0]
	if mp.Name != "MakePayment" {
		t.Errorf("name = %q, want MakePayment", mp.Name)
	}
	if mp.Discriminator != 3 {
		t.Errorf("discriminator = %d, want 3", mp.Discriminator)
	}
	if mp.Accounts != 4 {
		t.Errorf("accounts = %d, want 4", mp.Accounts)
	}

	wantArgs := []Field{
		{Name: "order_id", Type: "u32"},
		{Name: "amount", Type: "u64"},
		{Name: "bump", Type: "u8"},
	}
	if len(mp.Args) != len(wantArgs) {
		t.Fatalf("got %d args, want %d", len(mp.Args), len(wantArgs))
	}
	for i, want := range wantArgs {
		if mp.Args[i] != want {
			t.Errorf("arg[%d] = %+v, want %+v", i, mp.Args[i], want)
		}
	}

	cp := instrs[1]
	if cp.Name != "ClearPayment" {
		t.Errorf("name = %q, want ClearPayment", cp.Name)
	}
	if len(cp.Args) != 0 {
		t.Errorf("ClearPayment args = %v, want none", cp.Args)
	}
}

func TestParseAppliesAccountFloor(t *testing.T) {
	src := `
pub enum CommerceProgramInstruction {
    #[account(0, writable, signer, name = "payer")]
    #[account(1, writable, name = "vault")]
    Deposit { amount: u64, } = 1,
}
`

	instrs, err := Parse(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instrs))
	}

	if instrs[0].Accounts != 3 {
		t.Errorf("accounts = %d, want floor of 3", instrs[0].Accounts)
	}
	if len(instrs[0].Args) != 1 || instrs[0].Args[0] != (Field{Name: "amount", Type: "u64"}) {
		t.Errorf("args = %v, want [{amount u64}]", instrs[0].Args)
	}
}

func TestParseSkipsEmitEvent(t *testing.T) {
	instrs, err := Parse(sampleSource, DefaultConfig())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	for _, inst := range instrs {
		if inst.Name == "EmitEvent" {
			t.Error("EmitEvent should be skipped")
		}
	}
}

func TestParseCompoundTypes(t *testing.T) {
	src := `
pub enum CommerceProgramInstruction {
    #[account(0, writable, signer, name = "payer")]
    InitConfig {
        version: u32,
        operator_fee: u64,
        fee_type: FeeType,
        policies: Vec<PolicyData>,
        accepted_currencies: Vec<Pubkey>,
        expiry: Option<i64>,
        seed: [u8; 32],
    } = 2,
}
`

	instrs, err := Parse(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	args := instrs[0].Args
	want := []Field{
		{Name: "version", Type: "u32"},
		{Name: "operator_fee", Type: "u64"},
		{Name: "fee_type", Type: "FeeType"},
		{Name: "policies", Type: "Vec<PolicyData>"},
		{Name: "accepted_currencies", Type: "Vec<Pubkey>"},
		{Name: "expiry", Type: "Option<i64>"},
		{Name: "seed", Type: "[u8; 32]"},
	}

	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d: %v", len(args), len(want), args)
	}
	for i, w := range want {
		if args[i] != w {
			t.Errorf("arg[%d] = %+v, want %+v", i, args[i], w)
		}
	}
}

func TestParseMissingAnnotations(t *testing.T) {
	src := `
pub enum CommerceProgramInstruction {
    ClosePayment = 10,
}
`

	_, err := Parse(src, DefaultConfig())
	if err == nil {
		t.Fatal("expected error for missing account annotations")
	}
	if !strings.Contains(err.Error(), "ClosePayment") {
		t.Errorf("error should name the instruction: %v", err)
	}
}

func TestParseEnumNotFound(t *testing.T) {
	_, err := Parse("pub enum Other { A = 0 }", DefaultConfig())
	if err == nil {
		t.Fatal("expected error for missing enum")
	}
}

func TestParseRejectsPrefixEnumMatch(t *testing.T) {
	src := `
pub enum CommerceProgramInstructionV2 {
    Bogus = 0,
}

pub enum CommerceProgramInstruction {
    #[account(0, writable, signer, name = "payer")]
    Deposit = 1,
}
`

	instrs, err := Parse(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(instrs) != 1 || instrs[0].Name != "Deposit" {
		t.Errorf("got %v, want only Deposit", instrs)
	}
}

func TestParseEmptyEnum(t *testing.T) {
	_, err := Parse("pub enum CommerceProgramInstruction {}", DefaultConfig())
	if err == nil {
		t.Fatal("expected error for enum with no variants")
	}
}

func TestParseUnbalancedBraces(t *testing.T) {
	src := `pub enum CommerceProgramInstruction { Deposit { amount: u64 = 1,`

	if _, err := Parse(src, DefaultConfig()); err == nil {
		t.Fatal("expected error for unbalanced braces")
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.rs"), DefaultConfig())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instructions.rs")
	if err := os.WriteFile(path, []byte(sampleSource), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	instrs, err := ParseFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if len(instrs) != 2 {
		t.Errorf("got %d instructions, want 2", len(instrs))
	}
}
