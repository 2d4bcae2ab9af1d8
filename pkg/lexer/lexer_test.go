package lexer_test

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/lexer"
)

func tokenTypes(toks []lexer.Token) []lexer.TokenType {
	out := make([]lexer.TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func assertTypes(t *testing.T, src string, want ...lexer.TokenType) {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q) error: %v", src, err)
	}
	got := tokenTypes(toks)
	if len(got) != len(want) {
		t.Fatalf("Tokenize(%q) = %v, want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize(%q)[%d] = %s, want %s", src, i, got[i], want[i])
		}
	}
}

func TestPunctuationAndOperators(t *testing.T) {
	assertTypes(t, "(){},.-+;*/",
		lexer.TokenLeftParen, lexer.TokenRightParen, lexer.TokenLeftBrace,
		lexer.TokenRightBrace, lexer.TokenComma, lexer.TokenDot, lexer.TokenMinus,
		lexer.TokenPlus, lexer.TokenSemicolon, lexer.TokenStar, lexer.TokenSlash,
		lexer.TokenEOF)

	assertTypes(t, "! != = == > >= < <=",
		lexer.TokenBang, lexer.TokenBangEqual, lexer.TokenEqual, lexer.TokenEqualEqual,
		lexer.TokenGreater, lexer.TokenGreaterEqual, lexer.TokenLess, lexer.TokenLessEqual,
		lexer.TokenEOF)
}

func TestKeywordsVersusIdentifiers(t *testing.T) {
	assertTypes(t, "class fun forest",
		lexer.TokenClass, lexer.TokenFun, lexer.TokenIdentifier, lexer.TokenEOF)
}

func TestNumberLiteral(t *testing.T) {
	toks, err := lexer.New("123 45.67").Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Lexeme != "123" || toks[1].Lexeme != "45.67" {
		t.Fatalf("number lexemes = %q, %q", toks[0].Lexeme, toks[1].Lexeme)
	}
}

func TestNumberRejectsTrailingDotWithNoDigit(t *testing.T) {
	// "1." lexes as NUMBER("1") DOT, not a single malformed number: a trailing
	// '.' with no fractional digit belongs to whatever follows (e.g. a call).
	assertTypes(t, "1.", lexer.TokenNumber, lexer.TokenDot, lexer.TokenEOF)
}

func TestStringLiteral(t *testing.T) {
	toks, err := lexer.New(`"hello world"`).Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Type != lexer.TokenString || toks[0].Literal != "hello world" {
		t.Fatalf("string token = %+v", toks[0])
	}
}

func TestUnterminatedStringIsIllegal(t *testing.T) {
	_, err := lexer.New(`"oops`).Tokenize()
	if err == nil {
		t.Fatal("expected an error for an unterminated string")
	}
}

func TestLineCommentsAreSkipped(t *testing.T) {
	assertTypes(t, "// a comment\nvar", lexer.TokenVar, lexer.TokenEOF)
}

func TestLineTrackingAcrossNewlines(t *testing.T) {
	toks, err := lexer.New("var\n\nx").Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Line != 1 {
		t.Errorf("var line = %d, want 1", toks[0].Line)
	}
	if toks[1].Line != 3 {
		t.Errorf("x line = %d, want 3", toks[1].Line)
	}
}
