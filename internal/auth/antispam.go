/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package auth

import (
	"crypto/md5" //nolint:gosec // the token is an opaque question ID, not a secret
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
)

// ErrChallengeFailed is returned when an anti-spam submission carries an
// unknown token or a wrong answer. The HTTP layer maps it to 403.
var ErrChallengeFailed = errors.New("anti-spam challenge failed")

// QuestionSpec is the configuration of one anti-spam question. The answer is
// a regex that the submitted answer must match in full.
type QuestionSpec struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

type question struct {
	question string
	answer   *regexp.Regexp
	token    string
}

// Challenge is one question as presented to a client.
type Challenge struct {
	Token    string `json:"token"`
	Question string `json:"question"`
}

// AntiSpam hands out challenges from a closed question set and verifies the
// answers. Each question hashes to a stable opaque token, so no server-side
// challenge state is needed.
type AntiSpam struct {
	questions []question
	byToken   map[string]*question
}

// NewAntiSpam compiles the configured question set.
func NewAntiSpam(specs []QuestionSpec) (*AntiSpam, error) {
	if len(specs) == 0 {
		return nil, errors.New("anti-spam: at least one question is required")
	}
	s := &AntiSpam{
		questions: make([]question, len(specs)),
		byToken:   make(map[string]*question, len(specs)),
	}
	for idx, spec := range specs {
		answer, err := regexp.Compile("^(?:" + spec.Answer + ")$")
		if err != nil {
			return nil, fmt.Errorf("anti-spam: invalid answer pattern for question %q: %w", spec.Question, err)
		}
		digest := md5.Sum([]byte(spec.Question)) //nolint:gosec
		s.questions[idx] = question{
			question: spec.Question,
			answer:   answer,
			token:    hex.EncodeToString(digest[:]),
		}
		s.byToken[s.questions[idx].token] = &s.questions[idx]
	}
	return s, nil
}

// Random picks one challenge at random.
func (s *AntiSpam) Random() Challenge {
	q := s.questions[rand.Intn(len(s.questions))] //nolint:gosec // which question is asked need not be unpredictable
	return Challenge{Token: q.token, Question: q.question}
}

// VerifyAnswer checks a (token, answer) submission against the question set.
func (s *AntiSpam) VerifyAnswer(token, answer string) error {
	q, ok := s.byToken[token]
	if !ok {
		return fmt.Errorf("invalid token: %w", ErrChallengeFailed)
	}
	if !q.answer.MatchString(answer) {
		return fmt.Errorf("wrong answer: %w", ErrChallengeFailed)
	}
	return nil
}
