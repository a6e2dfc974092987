package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/fedchat"
	"github.com/opd-ai/fedchat/store"
)

func intPtr(v int) *int {
	return &v
}

func TestMergeAppliesSetFields(t *testing.T) {
	dst := fedchat.NewOptions()
	src := ChatConfig{
		GroupDomain:     "groups.chat.example.com",
		DefaultGroups:   []string{"lobby@groups.chat.example.com"},
		MessageLimit:    intPtr(500),
		PageSize:        intPtr(25),
		LivenessTimeout: 5 * time.Second,
	}

	Merge(dst, src)

	if dst.GroupDomain != "groups.chat.example.com" {
		t.Fatalf("expected groupDomain merged, got %q", dst.GroupDomain)
	}
	if len(dst.DefaultGroups) != 1 {
		t.Fatalf("expected 1 default group, got %d", len(dst.DefaultGroups))
	}
	if dst.MessageLimit != 500 {
		t.Fatalf("expected messageLimit=500, got %d", dst.MessageLimit)
	}
	if dst.PageSize != 25 {
		t.Fatalf("expected pageSize=25, got %d", dst.PageSize)
	}
	if dst.LivenessTimeout != 5*time.Second {
		t.Fatalf("expected livenessTimeout=5s, got %s", dst.LivenessTimeout)
	}
}

func TestMergeLeavesDefaultsWhenUnset(t *testing.T) {
	dst := fedchat.NewOptions()
	Merge(dst, ChatConfig{GroupDomain: "groups.chat.example.com"})

	if dst.MessageLimit != store.DefaultMessageLimit {
		t.Fatalf("expected default messageLimit, got %d", dst.MessageLimit)
	}
	if dst.RequestTimeout == 0 {
		t.Fatal("expected default requestTimeout preserved")
	}
}

func TestLoadFromPathMissingFileYieldsDefaults(t *testing.T) {
	opts := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if opts.MessageLimit != store.DefaultMessageLimit {
		t.Fatalf("expected defaults, got messageLimit=%d", opts.MessageLimit)
	}
}

func TestLoadFromPathParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedchat.yaml")
	body := `
chat:
  groupDomain: groups.chat.example.com
  pushService: push.chat.example.com
  pageSize: 50
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	opts := LoadFromPath(path)
	if opts.GroupDomain != "groups.chat.example.com" {
		t.Fatalf("expected groupDomain from file, got %q", opts.GroupDomain)
	}
	if opts.PushService != "push.chat.example.com" {
		t.Fatalf("expected pushService from file, got %q", opts.PushService)
	}
	if opts.PageSize != 50 {
		t.Fatalf("expected pageSize=50, got %d", opts.PageSize)
	}
}

func TestEnvOverrideWins(t *testing.T) {
	t.Setenv("FEDCHAT_GROUP_DOMAIN", "env.chat.example.com")

	opts := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if opts.GroupDomain != "env.chat.example.com" {
		t.Fatalf("expected env override, got %q", opts.GroupDomain)
	}
}
