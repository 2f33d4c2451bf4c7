package authority

import "github.com/boostsecurityio/integrity/models"

type verifyPackage struct {
	Name              string              `json:"name"`
	Version           string              `json:"version"`
	NormalizedVersion string              `json:"normalized_version,omitempty"`
	Purl              string              `json:"purl,omitempty"`
	Algorithm         string              `json:"algorithm"`
	Fingerprint       string              `json:"fingerprint"`
	Files             []models.FileDigest `json:"files,omitempty"`
}

type verifyRequest struct {
	RequestID string          `json:"request_id"`
	Packages  []verifyPackage `json:"packages"`
}

type verifyResponse struct {
	Packages []models.VerificationResponse `json:"packages"`
}

func newVerifyRequest(requestID string, requests []models.VerificationRequest) verifyRequest {
	body := verifyRequest{
		RequestID: requestID,
		Packages:  make([]verifyPackage, 0, len(requests)),
	}
	for _, req := range requests {
		body.Packages = append(body.Packages, verifyPackage{
			Name:              req.Name,
			Version:           req.Version,
			NormalizedVersion: req.NormalizedVersion,
			Purl:              req.Purl,
			Algorithm:         req.Fingerprint.Algorithm,
			Fingerprint:       req.Fingerprint.Digest,
			Files:             req.Fingerprint.Files,
		})
	}
	return body
}
