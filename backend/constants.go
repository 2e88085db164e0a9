// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import "time"

// Schema Versions
const (
	SchemaVersionV1      = 1
	CurrentSchemaVersion = SchemaVersionV1
)

const CurrentAppVersion = "0.1.0"

// Request limits
const (
	MaxTeamNameLen  = 64
	MaxAnswerLen    = 512
	MaxInnings      = 9
	maxRequestBytes = 64 * 1024
)

const defaultAuthCookieName = "triviaball_auth"

// Retry-After values, in seconds, for a busy hub.
const (
	retryAfterLoad  = "2"
	retryAfterEvent = "5"
)

// hubIdleTimeout is how long a hub with no clients and no at-bat in
// progress stays alive.
const hubIdleTimeout = 5 * time.Minute
