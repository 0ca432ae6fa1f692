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

package observability

import (
	"context"
	"time"
)

// NoopMetrics records nothing. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordToolExecution(context.Context, string, string, time.Duration, string) {}
func (NoopMetrics) RecordTaskTerminal(context.Context, string)                                 {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration)      {}
func (NoopMetrics) RecordDroppedUpdate(context.Context, string)                                {}
