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

package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"zgo.at/zcache/v2"

	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
)

const cacheCleanupInterval = 10 * time.Minute

// VerifyCache memoizes wall-clock verification results per credential,
// keyed by a digest of the wire bytes. Positive results live until the
// credential expires, negative results for the configured TTL. The cache
// is bound to one trust store snapshot; rotate the cache when trust roots
// change.
type VerifyCache struct {
	store *fedpki.TrustStore
	cache *zcache.Cache[string, Result]
}

// NewVerifyCache creates a cache over the given trust store. negativeTTL
// bounds how long failed results are served without re-verification.
func NewVerifyCache(store *fedpki.TrustStore, negativeTTL time.Duration) *VerifyCache {
	return &VerifyCache{
		store: store,
		cache: zcache.New[string, Result](negativeTTL, cacheCleanupInterval),
	}
}

// Verify verifies the credential at the current time, consulting the cache
// first.
func (vc *VerifyCache) Verify(cred *Credential) Result {
	sum := sha256.Sum256(cred.Encode())
	key := hex.EncodeToString(sum[:])
	if r, ok := vc.cache.Get(key); ok {
		return r
	}
	now := time.Now()
	r := Verify(cred, vc.store, now)
	if r.Valid {
		// A credential verified right at its expiry instant would get a
		// non-positive TTL, which zcache reads as the default one.
		if ttl := cred.Validity.NotAfter.Sub(now); ttl > 0 {
			vc.cache.SetWithExpire(key, r, ttl)
		}
	} else {
		vc.cache.Set(key, r)
	}
	return r
}
