/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package auth

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

var testQuestions = []QuestionSpec{
	{Question: "What is 2 + 2?", Answer: `4|four`},
	{Question: "Name of this project?", Answer: `[Pp]forte`},
}

func TestAntiSpamChallenge(t *testing.T) {
	s, err := NewAntiSpam(testQuestions)
	if err != nil {
		t.Fatal(err.Error())
	}

	//tokens are stable across processes: the hex MD5 of the question text
	digest := md5.Sum([]byte("What is 2 + 2?")) //nolint:gosec
	token := hex.EncodeToString(digest[:])

	challenge := s.Random()
	known := map[string]string{}
	for _, q := range testQuestions {
		d := md5.Sum([]byte(q.Question)) //nolint:gosec
		known[hex.EncodeToString(d[:])] = q.Question
	}
	assert.DeepEqual(t, "challenge question", known[challenge.Token], challenge.Question)

	check := func(token, answer string, expectOK bool) {
		t.Helper()
		err := s.VerifyAnswer(token, answer)
		if expectOK && err != nil {
			t.Errorf("answer %q: unexpected error: %s", answer, err.Error())
		}
		if !expectOK && !errors.Is(err, ErrChallengeFailed) {
			t.Errorf("answer %q: expected ErrChallengeFailed, got %v", answer, err)
		}
	}
	check(token, "4", true)
	check(token, "four", true)
	check(token, "5", false)
	check(token, "fourteen", false) //the answer regex must match in full
	check("bogus-token", "4", false)
}

func TestAntiSpamConfigErrors(t *testing.T) {
	_, err := NewAntiSpam(nil)
	if err == nil {
		t.Error("expected an error for an empty question set")
	}
	_, err = NewAntiSpam([]QuestionSpec{{Question: "broken", Answer: `(`}})
	if err == nil {
		t.Error("expected an error for an invalid answer pattern")
	}
}
