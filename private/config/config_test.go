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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/private/config"
)

func TestLoadSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedra.toml")
	require.NoError(t, os.WriteFile(path, []byte(config.Sample), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "urn:publicid:IDN+example.net+user+alice", cfg.Identity.URN)
	assert.Equal(t, []string{"/etc/fedra/trust"}, cfg.Trust.RootPaths)
	assert.Equal(t, 30*time.Second, cfg.Trust.NegativeVerifyTTL.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.CallTimeout.Duration)
	require.Len(t, cfg.Aggregates, 1)
	assert.Equal(t, "am-example", cfg.Aggregates[0].Name)
}

func TestLoadInvalid(t *testing.T) {
	testCases := map[string]string{
		"missing identity": `
[trust]
root_paths = ["/etc/fedra/trust"]
`,
		"missing trust roots": `
[identity]
cert_file = "member.pem"
key_file = "member.key"
`,
		"plain http aggregate": `
[identity]
cert_file = "member.pem"
key_file = "member.key"
[trust]
root_paths = ["/etc/fedra/trust"]
[[aggregates]]
name = "am-a"
url = "http://am.example.net"
`,
		"duplicate aggregate": `
[identity]
cert_file = "member.pem"
key_file = "member.key"
[trust]
root_paths = ["/etc/fedra/trust"]
[[aggregates]]
name = "am-a"
url = "https://am-one.example.net"
[[aggregates]]
name = "am-a"
url = "https://am-two.example.net"
`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fedra.toml")
			require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}
