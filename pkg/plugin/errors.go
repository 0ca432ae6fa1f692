// Copyright 2025 The Odin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodePluginNotFound          Code = "ODIN-2001"
	CodePluginLoadFailed        Code = "ODIN-2002"
	CodePluginInitFailed        Code = "ODIN-2003"
	CodePluginAlreadyRegistered Code = "ODIN-2004"
	CodePluginDependencyMissing Code = "ODIN-2005"
	CodeToolNotFound            Code = "ODIN-6001"
	CodeToolExecutionFailed     Code = "ODIN-6002"
)

// Error is the error type returned by the plugin manager. It carries a
// stable code, the plugin involved, and the wrapped cause when any.
type Error struct {
	Code    Code
	Plugin  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, pluginName, message string, err error) *Error {
	return &Error{
		Code:    code,
		Plugin:  pluginName,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err is a plugin Error carrying the given code.
func IsCode(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
