package style

import (
	"os"
	"testing"
)

func TestNoColorDisablesColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR must disable color")
	}
}

func TestCliColorForceEnablesColor(t *testing.T) {
	os.Unsetenv("NO_COLOR")
	t.Setenv("CLICOLOR_FORCE", "1")
	if !ShouldUseColor() {
		t.Error("CLICOLOR_FORCE must enable color even off-TTY")
	}
}

func TestLevelPlainWhenColorOff(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	for _, level := range []string{"ok", "warn", "critical", "none", "urgent", "mystery"} {
		if got := Level(level); got != level {
			t.Errorf("Level(%q) = %q, want passthrough without color", level, got)
		}
	}
}
