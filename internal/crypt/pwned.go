/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package crypt

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // the HIBP range API is keyed on SHA-1
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// LeakChecker reports how often a password appears in known credential leaks.
type LeakChecker interface {
	CountLeaks(password string) (int, error)
}

// NoopLeakChecker is a LeakChecker that reports every password as clean. It is
// used when leak checking is disabled in the configuration, and in tests.
type NoopLeakChecker struct{}

// CountLeaks implements the LeakChecker interface.
func (NoopLeakChecker) CountLeaks(password string) (int, error) {
	return 0, nil
}

// PwnedPasswords is a LeakChecker backed by the "Have I Been Pwned" range API.
// Only the first five hex digits of the password's SHA-1 hash go over the
// wire (k-anonymity).
type PwnedPasswords struct {
	// BaseURL can be overridden in tests. Defaults to the public API.
	BaseURL string
	// Client can be overridden in tests. Defaults to a client with a timeout.
	Client *http.Client
}

// CountLeaks implements the LeakChecker interface.
func (p PwnedPasswords) CountLeaks(password string) (int, error) {
	digest := fmt.Sprintf("%X", sha1.Sum([]byte(password))) //nolint:gosec
	prefix, suffix := digest[:5], digest[5:]

	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "https://api.pwnedpasswords.com/range"
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Get(baseURL + "/" + prefix)
	if err != nil {
		return 0, fmt.Errorf("cannot check for leaked password: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cannot check for leaked password: expected 200, got %s", resp.Status)
	}

	//the response is one "SUFFIX:COUNT" pair per line, for all leaked hashes
	//sharing our prefix
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.SplitN(line, ":", 2)
		if len(fields) != 2 {
			continue
		}
		if strings.EqualFold(fields[0], suffix) {
			count, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil {
				return 0, fmt.Errorf("cannot parse leak count %q: %w", fields[1], err)
			}
			return count, nil
		}
	}
	return 0, scanner.Err()
}
