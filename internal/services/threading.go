package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"closingflow/internal/repositories"
)

// Reply/forward prefixes in the handful of languages our inboxes see.
// Matched repeatedly so "Re: Fwd: AW: x" collapses to "x".
var subjectPrefixRe = regexp.MustCompile(`(?i)^(re|fwd|fw|aw|sv|vs|ref)(\[\d+\])?\s*:\s*`)

// NormalizeSubject strips reply/forward prefixes, lowercases and trims.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := subjectPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// SubjectThreadID derives the content-addressed fallback thread id: a
// fixed-length hash of property id + normalized subject. Identical
// (property, normalized-subject) pairs always produce the identical id,
// so both ends of a conversation compute it independently.
func SubjectThreadID(propertyID uuid.UUID, subject string) string {
	sum := sha256.Sum256([]byte(propertyID.String() + "\n" + NormalizeSubject(subject)))
	return hex.EncodeToString(sum[:16])
}

// ResolveThreadID assigns a thread to a new message:
//  1. in-reply-to pointing at a known provider message-id wins,
//  2. else the references chain, newest to oldest,
//  3. else the deterministic subject hash.
//
// Header-based correlation is authoritative when present (it survives
// subject changes mid-thread); the hash guarantees every message lands
// in some thread without a coordination round-trip.
func ResolveThreadID(
	ctx context.Context,
	inboxRepo repositories.InboxRepository,
	propertyID uuid.UUID,
	inReplyTo string,
	references []string,
	subject string,
) (string, error) {
	if inReplyTo != "" {
		m, err := inboxRepo.FindByProviderMessageID(ctx, propertyID, inReplyTo)
		if err != nil {
			return "", err
		}
		if m != nil {
			return m.ThreadID, nil
		}
	}

	for i := len(references) - 1; i >= 0; i-- {
		ref := strings.TrimSpace(references[i])
		if ref == "" {
			continue
		}
		m, err := inboxRepo.FindByProviderMessageID(ctx, propertyID, ref)
		if err != nil {
			return "", err
		}
		if m != nil {
			return m.ThreadID, nil
		}
	}

	return SubjectThreadID(propertyID, subject), nil
}
