package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boostsecurityio/integrity/models"
	"github.com/rs/zerolog/log"
)

// Authority is the verification service. Records may come back in any order
// and packages unknown to the authority may be omitted, but every record
// must echo the name and version it was submitted with. Records for
// requests sharing a name and version must keep their relative order.
type Authority interface {
	SubmitBatch(ctx context.Context, requests []models.VerificationRequest) ([]models.VerificationResponse, error)
}

type VerificationClient struct {
	authority Authority
	timeout   time.Duration
}

func NewVerificationClient(authority Authority, timeout time.Duration) *VerificationClient {
	return &VerificationClient{
		authority: authority,
		timeout:   timeout,
	}
}

// Submit sends the whole batch in a single exchange and returns exactly one
// response per request, in request order.
func (c *VerificationClient) Submit(ctx context.Context, requests []models.VerificationRequest) ([]models.VerificationResponse, error) {
	if len(requests) == 0 {
		return []models.VerificationResponse{}, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log.Debug().Msgf("Submitting %d package fingerprints to the verification authority", len(requests))
	records, err := c.authority.SubmitBatch(ctx, requests)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &models.Failure{
				Kind: models.TransportFailure,
				Err:  fmt.Errorf("verification authority did not answer within %s: %w", c.timeout, err),
			}
		}
		return nil, models.NewFailure(models.TransportFailure, fmt.Errorf("failed to submit batch: %w", err))
	}

	return reconcile(requests, records)
}

// reconcile matches records to requests. Records sharing a name and version
// are handed out in the order they were received, one per request with that
// key, so two installs of the same release each get their own answer.
func reconcile(requests []models.VerificationRequest, records []models.VerificationResponse) ([]models.VerificationResponse, error) {
	expected := make(map[models.PackageKey]int, len(requests))
	for _, req := range requests {
		expected[req.Key()]++
	}

	pending := make(map[models.PackageKey][]models.VerificationResponse, len(expected))
	for _, record := range records {
		key := record.Key()
		if expected[key] == 0 {
			log.Debug().Str("package", key.Name).Str("version", key.Version).Msg("ignoring unexpected authority record")
			continue
		}
		if len(pending[key]) == expected[key] {
			log.Debug().Str("package", key.Name).Str("version", key.Version).Msg("ignoring extra authority record")
			continue
		}
		if record.Similarity != nil && (*record.Similarity < 0 || *record.Similarity > 100) {
			return nil, &models.Failure{
				Kind: models.ProtocolFailure,
				Err:  fmt.Errorf("similarity %d out of range for %s@%s", *record.Similarity, key.Name, key.Version),
			}
		}
		pending[key] = append(pending[key], record)
	}

	responses := make([]models.VerificationResponse, len(requests))
	for i, req := range requests {
		key := req.Key()
		queue := pending[key]
		if len(queue) == 0 {
			responses[i] = models.VerificationResponse{Name: req.Name, Version: req.Version}
			continue
		}
		record := queue[0]
		pending[key] = queue[1:]

		if record.Found() && record.Similarity == nil {
			similarity := 0
			if record.Checksum != nil && checksumEqual(*record.Checksum, req.Fingerprint) {
				similarity = 100
			}
			record.Similarity = &similarity
		}
		responses[i] = record
	}

	return responses, nil
}

// checksumEqual accepts both "<digest>" and "<algorithm>:<digest>".
func checksumEqual(checksum string, fp models.PackageFingerprint) bool {
	return strings.EqualFold(checksum, fp.Digest) || strings.EqualFold(checksum, fp.String())
}
