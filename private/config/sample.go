// Copyright 2025 The Fedra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

// Sample is a documented example configuration.
const Sample = `[log]
# Minimum enabled level: debug, info or error. (default info)
level = "info"
# Output format: human or json. (default human)
format = "human"

[identity]
# Member certificate and key presented on every federation connection.
cert_file = "/etc/fedra/member.pem"
key_file = "/etc/fedra/member.key"
# The member's publicid URN.
urn = "urn:publicid:IDN+example.net+user+alice"

[trust]
# PEM bundles or directories of *.pem files with federation roots.
root_paths = ["/etc/fedra/trust"]
# How long failed credential verifications are cached. (default 30s)
negative_verify_ttl = "30s"

[registry]
# Sliver bookkeeping database; empty keeps the registry in memory.
db_path = "/var/lib/fedra/registry.db"

[dispatch]
# Concurrent aggregate calls across one dispatch. (default 8)
max_in_flight = 8
# Per-aggregate call budget, retries included. (default 2m)
call_timeout = "2m"
# Retry attempts for unreachable aggregates. (default 3)
max_retries = 3

[[aggregates]]
name = "am-example"
url = "https://am.example.net:12346"
# Optional pinned CA bundle for this aggregate's server certificate.
# ca_cert_file = "/etc/fedra/am-example-ca.pem"
`
