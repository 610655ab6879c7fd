package agent

import (
	"strings"
	"testing"

	"github.com/basedagent/basedagent/pkg/session"
	"github.com/basedagent/basedagent/pkg/tools"
	"github.com/basedagent/basedagent/pkg/wallet"
)

func TestBuildSystemPrompt_WithWallet(t *testing.T) {
	registry := tools.NewToolRegistry()
	d := wallet.Data{WalletID: "w-1", NetworkID: "base-sepolia", DefaultAddressID: "0xabc"}
	tools.RegisterWalletTools(registry, nil, d)

	out := NewContextBuilder(registry).BuildSystemPrompt(&d)
	if !strings.Contains(out, "BasedAgent") {
		t.Fatalf("expected persona in prompt")
	}
	if !strings.Contains(out, "Address: 0xabc") || !strings.Contains(out, "Network: base-sepolia") {
		t.Fatalf("expected wallet section, got: %q", out)
	}
	if !strings.Contains(out, "- `transfer`") {
		t.Fatalf("expected tool summaries, got: %q", out)
	}
	if strings.Contains(out, "unavailable") {
		t.Fatalf("did not expect unavailable note")
	}
}

func TestBuildSystemPrompt_WithoutWallet(t *testing.T) {
	out := NewContextBuilder(tools.NewToolRegistry()).BuildSystemPrompt(nil)
	if !strings.Contains(out, "wallet is unavailable") {
		t.Fatalf("expected unavailable note, got: %q", out)
	}
	if strings.Contains(out, "## Available Tools") {
		t.Fatalf("did not expect tools section without tools")
	}
}

func TestBuildMessages_PreservesRolesAndDropsLeadingAssistant(t *testing.T) {
	transcript := []session.Turn{
		{Role: session.RoleAssistant, Content: "orphan"},
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hi there"},
		{Role: session.RoleUser, Content: "  "},
		{Role: "", Content: "what's my balance"},
	}
	msgs := NewContextBuilder(nil).BuildMessages(transcript, nil)

	want := []struct{ role, content string }{
		{"user", "hi"},
		{"assistant", "hi there"},
		{"user", "what's my balance"},
	}
	if len(msgs) != len(want)+1 {
		t.Fatalf("expected %d messages, got %d", len(want)+1, len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("expected system message first, got %q", msgs[0].Role)
	}
	for i, w := range want {
		got := msgs[i+1]
		if got.Role != w.role || got.Content != w.content {
			t.Fatalf("message %d: got %s/%q want %s/%q", i+1, got.Role, got.Content, w.role, w.content)
		}
	}
}
