// errors.go: structured error definitions for the shim bridge
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	stderrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes for the shim bridge
const (
	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"
	ErrCodeConfigPathError       = "CONFIG_1705"
	ErrCodeConfigFileError       = "CONFIG_1706"

	// Registry and bundle errors (1900-1999)
	ErrCodeRegistryError  = "REGISTRY_1901"
	ErrCodeBundleError    = "REGISTRY_1902"
	ErrCodeManifestError  = "REGISTRY_1903"
	ErrCodeCatalogError   = "REGISTRY_1904"
	ErrCodeLoaderNotReady = "REGISTRY_1905"

	// Resolution errors (2000-2099)
	ErrCodeCanceled              = "BRIDGE_2001"
	ErrCodeNotFound              = "BRIDGE_2002"
	ErrCodeMalformedUnit         = "BRIDGE_2003"
	ErrCodeNoMatchingConstructor = "BRIDGE_2004"
	ErrCodeConstructionFailed    = "BRIDGE_2005"
)

// Resolution error constructors

// NewCanceledError reports a delegate wait that was interrupted by its caller.
func NewCanceledError(pluginType, pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeCanceled, "Delegate wait canceled").
		WithUserMessage("The requested plugin did not become available before the wait was canceled").
		WithContext("plugin_type", pluginType).
		WithContext("plugin_id", pluginID).
		WithSeverity("warning")
}

// NewNotFoundError reports a name that no module source could resolve.
func NewNotFoundError(kind, name string) *errors.Error {
	return errors.New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, name)).
		WithUserMessage("The requested name could not be resolved by any module source").
		WithContext("kind", kind).
		WithContext("name", name).
		WithSeverity("warning").
		AsRetryable()
}

// NewMalformedUnitError reports a bundle entry that could not be read or defined.
func NewMalformedUnitError(name, locator string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeMalformedUnit, "Malformed module unit: "+name).
		WithUserMessage("A bundle entry could not be defined as a type").
		WithContext("name", name).
		WithContext("locator", locator).
		WithSeverity("error")
}

// NewNoMatchingConstructorError reports that no constructor accepts the argument shape.
func NewNoMatchingConstructorError(className string, args []any) *errors.Error {
	return errors.New(ErrCodeNoMatchingConstructor, "No matching constructor for "+className).
		WithUserMessage("Unable to find a constructor compatible with the supplied arguments").
		WithContext("class", className).
		WithContext("arity", len(args)).
		WithContext("argument_types", describeArgs(args)).
		WithSeverity("error")
}

// NewConstructionFailedError reports a constructor that rejected its arguments.
func NewConstructionFailedError(className, label string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConstructionFailed, "Construction failed for "+className).
		WithUserMessage("The selected constructor failed while building the object").
		WithContext("class", className).
		WithContext("constructor", label).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The configuration file could not be found").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("Failed to parse configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidationError, "Configuration validation error: "+message).
			WithUserMessage("Configuration validation failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidationError, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConfigWatcherError, "Configuration watcher error: "+message).
			WithUserMessage("Configuration monitoring failed").
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeConfigWatcherError, "Configuration watcher error: "+message).
		WithUserMessage("Configuration monitoring failed").
		WithSeverity("error")
}

func NewConfigPathError(path string, message string) *errors.Error {
	return errors.New(ErrCodeConfigPathError, "Configuration path error: "+message).
		WithUserMessage("Invalid configuration file path").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigFileError(path string, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigFileError, "Configuration file error: "+message).
		WithUserMessage("Configuration file access failed").
		WithContext("config_path", path).
		WithSeverity("error")
}

// Registry and bundle error constructors

func NewRegistryError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeRegistryError, "Registry error: "+message).
			WithUserMessage("Plugin registry operation failed").
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeRegistryError, "Registry error: "+message).
		WithUserMessage("Plugin registry operation failed").
		WithSeverity("error")
}

func NewBundleError(path string, message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeBundleError, "Bundle error: "+message).
			WithUserMessage("Bundle entry lookup failed").
			WithContext("path", path).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeBundleError, "Bundle error: "+message).
		WithUserMessage("Bundle entry lookup failed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewManifestError(path string, message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeManifestError, "Registry manifest error: "+message).
			WithUserMessage("Registry manifest could not be applied").
			WithContext("manifest_path", path).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeManifestError, "Registry manifest error: "+message).
		WithUserMessage("Registry manifest could not be applied").
		WithContext("manifest_path", path).
		WithSeverity("error")
}

func NewCatalogError(className string, message string) *errors.Error {
	return errors.New(ErrCodeCatalogError, "Constructor table error: "+message).
		WithUserMessage("Constructor registration failed").
		WithContext("class", className).
		WithSeverity("error")
}

// NewLoaderNotReadyError reports a registered plugin whose loader is not attached yet.
func NewLoaderNotReadyError(pluginType, pluginID string) *errors.Error {
	return errors.New(ErrCodeLoaderNotReady, "Plugin loader not ready").
		WithUserMessage("The plugin is registered but its loader is not available yet").
		WithContext("plugin_type", pluginType).
		WithContext("plugin_id", pluginID).
		WithSeverity("info").
		AsRetryable()
}

// Classification helpers

// HasErrorCode reports whether the outermost bridge error in err's chain
// carries code. Causes wrapped by that error are not consulted, so a
// MalformedUnit caused by a NotFound is only a MalformedUnit.
func HasErrorCode(err error, code errors.ErrorCode) bool {
	var bridgeErr *errors.Error
	if !stderrors.As(err, &bridgeErr) {
		return false
	}
	return bridgeErr.Code == code
}

func IsCanceled(err error) bool { return HasErrorCode(err, ErrCodeCanceled) }

func IsNotFound(err error) bool { return HasErrorCode(err, ErrCodeNotFound) }

func IsMalformedUnit(err error) bool { return HasErrorCode(err, ErrCodeMalformedUnit) }

func IsNoMatchingConstructor(err error) bool { return HasErrorCode(err, ErrCodeNoMatchingConstructor) }

func IsConstructionFailed(err error) bool { return HasErrorCode(err, ErrCodeConstructionFailed) }

// ToGRPCStatus maps a bridge error onto a grpc status. A nil error is OK.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	code := codes.Unknown
	switch {
	case IsCanceled(err):
		code = codes.Canceled
	case IsNotFound(err):
		code = codes.NotFound
	case IsMalformedUnit(err):
		code = codes.DataLoss
	case IsNoMatchingConstructor(err):
		code = codes.InvalidArgument
	case IsConstructionFailed(err):
		code = codes.Internal
	case HasErrorCode(err, ErrCodeLoaderNotReady):
		code = codes.Unavailable
	case HasErrorCode(err, ErrCodeConfigValidationError), HasErrorCode(err, ErrCodeConfigPathError):
		code = codes.InvalidArgument
	}
	return status.New(code, err.Error())
}

// describeArgs renders argument runtime types for error context.
func describeArgs(args []any) []string {
	types := make([]string, len(args))
	for i, arg := range args {
		if arg == nil {
			types[i] = "<nil>"
			continue
		}
		types[i] = fmt.Sprintf("%T", arg)
	}
	return types
}
