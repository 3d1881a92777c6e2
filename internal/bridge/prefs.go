package bridge

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/google/uuid"
)

// Options of the /discord command
const (
	OptionDMsWhenOnline  = "discordDMsWhenOnline"
	OptionDMsWhenOffline = "discordDMsWhenOffline"
	OptionDeathAlert     = "deathAlertDelay"
)

var (
	preferenceOptions  = []string{OptionDMsWhenOnline, OptionDMsWhenOffline, OptionDeathAlert}
	booleanSuggestions = []string{"yes", "no"}
	delaySuggestions   = []string{"0", "60", "120", "150", "180", "240"}

	truthy = []string{"true", "enable", "yes", "on", "y", "1", "+"}
	falsey = []string{"false", "disable", "no", "off", "n", "0", "-"}
)

const preferencesUsage = "Usage: /discord <option> [value]\n Valid options: " +
	OptionDMsWhenOnline + ", " + OptionDMsWhenOffline + ", " + OptionDeathAlert

func parseBool(s string) (bool, bool) {
	s = strings.ToLower(s)
	for _, v := range truthy {
		if s == v {
			return true, true
		}
	}
	for _, v := range falsey {
		if s == v {
			return false, true
		}
	}
	return false, false
}

// parseDelay reads a delay in seconds. Negative delays disable the alert.
func parseDelay(s string) (time.Duration, bool) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, false
	}
	if secs <= 0 {
		return 0, true
	}
	return time.Duration(secs * float64(time.Second)), true
}

func canonicalOption(name string) (string, bool) {
	for _, opt := range preferenceOptions {
		if strings.EqualFold(opt, name) {
			return opt, true
		}
	}
	return "", false
}

// preferences runs /discord for a player and returns the text to show them.
// Without a value the current setting is reported.
func (b *Bridge) preferences(ctx context.Context, id uuid.UUID, args []string) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return preferencesUsage, nil
	}
	option, ok := canonicalOption(args[0])
	if !ok {
		return preferencesUsage, nil
	}

	acct, err := b.store.AccountByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading account: %w", err)
	}
	if acct == nil {
		return "", fmt.Errorf("no account for %s", id)
	}

	if option == OptionDeathAlert {
		delay := acct.DeathAlertDelay
		if len(args) == 2 {
			if delay, ok = parseDelay(args[1]); !ok {
				return invalidValue(args[1], option, "numerical"), nil
			}
			if err := b.store.SetDeathAlertDelay(ctx, id, delay); err != nil {
				return "", fmt.Errorf("saving %s: %w", option, err)
			}
		}
		return describeDelay(delay), nil
	}

	enabled := acct.NotifyWhileOnline
	if option == OptionDMsWhenOffline {
		enabled = acct.NotifyWhileOffline
	}
	if len(args) == 2 {
		if enabled, ok = parseBool(args[1]); !ok {
			return invalidValue(args[1], option, "true/false"), nil
		}
		if err := b.setNotify(ctx, option, acct, enabled); err != nil {
			return "", fmt.Errorf("saving %s: %w", option, err)
		}
	}
	return describeDMs(option, enabled), nil
}

func (b *Bridge) setNotify(ctx context.Context, option string, acct *domain.Account, enabled bool) error {
	if option == OptionDMsWhenOffline {
		return b.store.SetNotifyWhileOffline(ctx, acct.ID, enabled)
	}
	return b.store.SetNotifyWhileOnline(ctx, acct.ID, enabled)
}

func invalidValue(value, option, kind string) string {
	return fmt.Sprintf("'%s' is not a valid value! %s is a %s setting.", value, option, kind)
}

func describeDMs(option string, enabled bool) string {
	when := "while you're online"
	if option == OptionDMsWhenOffline {
		when = "while you're away"
	}
	not := ""
	if !enabled {
		not = "<red>not</red> "
	}
	return fmt.Sprintf("<gold>You will %sreceive Discord DMs %s.</gold>", not, when)
}

func describeDelay(delay time.Duration) string {
	if delay <= 0 {
		return "<gold>You will <red>not</red> be notified if you don't respawn after you die.</gold>"
	}
	secs := strconv.FormatFloat(delay.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("<gold>You will be notified if you don't respawn for <red>%s</red> seconds after you die.</gold>", secs)
}

// preferenceSuggestions completes the /discord command
func preferenceSuggestions(args []string) []string {
	switch len(args) {
	case 0:
		return withPrefix(preferenceOptions, "")
	case 1:
		return withPrefix(preferenceOptions, args[0])
	case 2:
		option, ok := canonicalOption(args[0])
		if !ok {
			return nil
		}
		if option == OptionDeathAlert {
			return withPrefix(delaySuggestions, args[1])
		}
		return withPrefix(booleanSuggestions, args[1])
	}
	return nil
}

func withPrefix(candidates []string, prefix string) []string {
	prefix = strings.ToLower(prefix)
	out := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), prefix) {
			out = append(out, c)
		}
	}
	return out
}
