// Copyright © 2024 OpenIM. All rights reserved.
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

// Package metrics registers the dscached process's prometheus collectors
// on a private registry (never the global default, so tests can create
// as many independent Collector instances as they like) and exposes it
// over HTTP for internal/admin to serve, the same division of labor as
// prommetrics on the RPC path: business code reports counts
// through a narrow interface, one place owns the registry and the HTTP
// exposition.
package metrics
