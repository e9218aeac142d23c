package compositor

import (
	"fmt"
	"time"

	"github.com/framepace/compositor/internal/scheduler"
)

// Schedule RPC Direct Handlers
// This module maps transport messages onto modulator calls with explicit
// parameter validation. Invalid parameters are errors to the caller and are
// never fatal to the daemon.

// validateFloat64Param extracts and validates a float64 parameter from the params map
func validateFloat64Param(params map[string]interface{}, paramName, methodName string, min, max float64) (float64, error) {
	value, ok := params[paramName].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: %s parameter must be a number, got %T", methodName, paramName, params[paramName])
	}
	if value < min || value > max {
		return 0, fmt.Errorf("%s: %s value %v out of range [%v to %v]", methodName, paramName, value, min, max)
	}
	return value, nil
}

// validateStringParam extracts a string parameter and checks it against the
// allowed values
func validateStringParam(params map[string]interface{}, paramName, methodName string, allowed ...string) (string, error) {
	value, ok := params[paramName].(string)
	if !ok {
		return "", fmt.Errorf("%s: %s parameter must be a string, got %T", methodName, paramName, params[paramName])
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", fmt.Errorf("%s: %s value %q not one of %v", methodName, paramName, value, allowed)
}

// validateConfigParam extracts one preset from a nested params object with
// app_work_ms and sf_work_ms millisecond fields
func validateConfigParam(params map[string]interface{}, paramName, methodName string) (scheduler.VsyncConfig, error) {
	nested, ok := params[paramName].(map[string]interface{})
	if !ok {
		return scheduler.VsyncConfig{}, fmt.Errorf("%s: %s parameter must be an object, got %T", methodName, paramName, params[paramName])
	}
	appMs, err := validateFloat64Param(nested, "app_work_ms", methodName, 0, 1000)
	if err != nil {
		return scheduler.VsyncConfig{}, err
	}
	sfMs, err := validateFloat64Param(nested, "sf_work_ms", methodName, 0, 1000)
	if err != nil {
		return scheduler.VsyncConfig{}, err
	}
	return scheduler.VsyncConfig{
		AppWorkDuration: time.Duration(appMs * float64(time.Millisecond)),
		SfWorkDuration:  time.Duration(sfMs * float64(time.Millisecond)),
	}, nil
}

func parseTransactionSchedule(value string) scheduler.TransactionSchedule {
	switch value {
	case "early-start":
		return scheduler.ScheduleEarlyStart
	case "early-end":
		return scheduler.ScheduleEarlyEnd
	default:
		return scheduler.ScheduleLate
	}
}

// VsyncConfigResult is the common RPC result: whether the call changed the
// selection and, if it did, the resulting config.
type VsyncConfigResult struct {
	Changed bool             `json:"changed"`
	Config  *VsyncConfigData `json:"config,omitempty"`
}

func (s *ClientSession) configResult(config scheduler.VsyncConfig, changed bool) VsyncConfigResult {
	if !changed {
		return VsyncConfigResult{}
	}
	return VsyncConfigResult{
		Changed: true,
		Config: &VsyncConfigData{
			ConfigType:      s.modulator.NextVsyncConfigType().String(),
			AppWorkDuration: config.AppWorkDuration.String(),
			SfWorkDuration:  config.SfWorkDuration.String(),
		},
	}
}

// Direct handler for transaction schedule reports
func (s *ClientSession) handleSetTransactionScheduleDirect(params map[string]interface{}) (interface{}, error) {
	scheduleStr, err := validateStringParam(params, "schedule", "setTransactionSchedule",
		"early-start", "early-end", "late")
	if err != nil {
		return nil, err
	}

	config, changed := s.modulator.SetTransactionSchedule(parseTransactionSchedule(scheduleStr), s.handle)
	return s.configResult(config, changed), nil
}

// Direct handler for transaction commits
func (s *ClientSession) handleCommitTransactionDirect(map[string]interface{}) (interface{}, error) {
	config, changed := s.modulator.OnTransactionCommit()
	return s.configResult(config, changed), nil
}

// Direct handler for config set replacement
func (s *ClientSession) handleSetVsyncConfigSetDirect(params map[string]interface{}) (interface{}, error) {
	early, err := validateConfigParam(params, "early", "setVsyncConfigSet")
	if err != nil {
		return nil, err
	}
	earlyGpu, err := validateConfigParam(params, "early_gpu", "setVsyncConfigSet")
	if err != nil {
		return nil, err
	}
	late, err := validateConfigParam(params, "late", "setVsyncConfigSet")
	if err != nil {
		return nil, err
	}

	config := s.modulator.SetVsyncConfigSet(scheduler.VsyncConfigSet{
		Early:    early,
		EarlyGpu: earlyGpu,
		Late:     late,
	})
	return s.configResult(config, true), nil
}

// Direct handler for refresh rate switches
func (s *ClientSession) handleSetRefreshRateDirect(params map[string]interface{}) (interface{}, error) {
	rate, err := validateFloat64Param(params, "rate", "setRefreshRate", 1, 1000)
	if err != nil {
		return nil, err
	}
	if s.displayLoop == nil {
		return nil, fmt.Errorf("setRefreshRate: no display loop attached")
	}
	if err := s.displayLoop.SetRefreshRate(rate); err != nil {
		return nil, fmt.Errorf("setRefreshRate: %w", err)
	}
	return nil, nil
}

// HandleScheduleRPCDirect routes schedule method calls to their handlers.
func (s *ClientSession) HandleScheduleRPCDirect(method string, params map[string]interface{}) (interface{}, error) {
	switch method {
	case "setTransactionSchedule":
		return s.handleSetTransactionScheduleDirect(params)
	case "commitTransaction":
		return s.handleCommitTransactionDirect(params)
	case "setVsyncConfigSet":
		return s.handleSetVsyncConfigSetDirect(params)
	case "setRefreshRate":
		return s.handleSetRefreshRateDirect(params)
	default:
		return nil, fmt.Errorf("HandleScheduleRPCDirect: unsupported method '%s'", method)
	}
}

// isScheduleMethod reports whether a method has a direct handler. Must be
// kept in sync with HandleScheduleRPCDirect.
func isScheduleMethod(method string) bool {
	switch method {
	case "setTransactionSchedule", "commitTransaction", "setVsyncConfigSet", "setRefreshRate":
		return true
	default:
		return false
	}
}
