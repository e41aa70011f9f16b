package nodes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

var (
	ErrInvalidDuration = errors.New("invalid delay duration")
	ErrUnknownUnit     = errors.New("unknown delay unit")
)

// maxDelayMillis is the longest delay a time.Duration can hold.
const maxDelayMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// DelayMillis converts a delay node config to milliseconds. A variable delay
// reads its amount from the named run variable.
func DelayMillis(config map[string]any, env Env) (int64, error) {
	amount := config["duration"]

	if durationType, _ := config["durationType"].(string); durationType == "variable" {
		name, _ := config["variableName"].(string)
		if name == "" {
			return 0, fmt.Errorf("%w: variable delay needs variableName", ErrInvalidDuration)
		}

		value, ok := env.Run.Variable(name)
		if !ok {
			return 0, fmt.Errorf("%w: variable %s is not set", ErrInvalidDuration, name)
		}

		amount = value
	}

	n, ok := toNumber(amount)
	if !ok || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, amount)
	}

	unit, _ := config["unit"].(string)

	var factor float64

	switch strings.ToLower(unit) {
	case "", "ms", "milliseconds":
		factor = 1
	case "s", "seconds":
		factor = 1000
	case "m", "minutes":
		factor = 60 * 1000
	case "h", "hours":
		factor = 60 * 60 * 1000
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}

	ms := n * factor
	if ms > maxDelayMillis {
		return 0, fmt.Errorf("%w: %v %s exceeds the longest supported delay", ErrInvalidDuration, amount, unit)
	}

	return int64(ms), nil
}

// executeDelay waits on a timer. Cancellation or shutdown ends the wait early;
// the traversal loop then stops the run.
func executeDelay(ctx context.Context, node *models.Node, data any, env Env) Outcome {
	ms, err := DelayMillis(node.Config, env)
	if err != nil {
		return failure(node, err)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-env.Cancel:
		env.Logger.DebugContext(ctx, "delay interrupted by cancellation", "node_id", node.ID)
	case <-ctx.Done():
		env.Logger.DebugContext(ctx, "delay interrupted by shutdown", "node_id", node.ID)
	}

	return success(node, data)
}
