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

// Package config defines the dscached process's configuration structure
// and loader. A single YAML file maps to Config via viper + mapstructure,
// with every value overridable by an environment variable (prefix
// DSCACHE_, dots replaced by underscores) and validated with
// go-playground/validator struct tags before the process starts.
package config
