package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/pharmaguard-wizard/internal/domain"
)

// DefaultPatientID is sent when the caller has no patient identifier
const DefaultPatientID = "unknown"

// AnalyzeRequest is one (file, drug) submission
type AnalyzeRequest struct {
	FileName  string
	Content   []byte
	Drug      domain.Drug
	PatientID string
}

// ManualRequest is the body of /analyze-manual
type ManualRequest struct {
	Gene      string `json:"gene"`
	Phenotype string `json:"phenotype"`
	Drug      string `json:"drug"`
}

// ManualResponse echoes the manual request back with a status
type ManualResponse struct {
	Gene      string `json:"gene"`
	Phenotype string `json:"phenotype"`
	Drug      string `json:"drug"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// VCFInspection is the diagnostic parse returned by /test-vcf
type VCFInspection struct {
	DetectedVariants []InspectedVariant `json:"detected_rsids"`
}

// InspectedVariant is a single pharmacogenomic record found in the file
type InspectedVariant struct {
	RSID     string  `json:"rsid"`
	Genotype string  `json:"genotype"`
	Ref      string  `json:"ref"`
	Alt      string  `json:"alt"`
	Qual     float64 `json:"qual"`
	Filter   string  `json:"filter"`
	Depth    int     `json:"dp"`
	GQ       int     `json:"gq"`
}

// UnavailableError reports a failed health check
type UnavailableError struct {
	BaseURL string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("Backend is not available at %s", e.BaseURL)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Analyze submits a variant file for one drug
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResponse, error) {
	patientID := req.PatientID
	if patientID == "" {
		patientID = DefaultPatientID
	}

	body, contentType, err := encodeMultipart(req.FileName, req.Content, map[string]string{
		"drug":       string(req.Drug),
		"patient_id": patientID,
	})
	if err != nil {
		return nil, err
	}

	data, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentType)
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := domain.DecodeAnalysisResponse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	return resp, nil
}

// InspectVCF asks the backend to parse a file without analysing it
func (c *Client) InspectVCF(ctx context.Context, fileName string, content []byte) (*VCFInspection, error) {
	body, contentType, err := encodeMultipart(fileName, content, nil)
	if err != nil {
		return nil, err
	}

	data, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/test-vcf", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentType)
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	var inspection VCFInspection
	if err := json.Unmarshal(data, &inspection); err != nil {
		return nil, fmt.Errorf("failed to decode inspection response: %w", err)
	}
	return &inspection, nil
}

// AnalyzeManual submits a gene/phenotype pair without a file
func (c *Client) AnalyzeManual(ctx context.Context, req ManualRequest) (*ManualResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manual request: %w", err)
	}

	data, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-manual", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	var resp ManualResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode manual response: %w", err)
	}
	return &resp, nil
}

// Health calls the backend root endpoint. Any failure is an *UnavailableError.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	data, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	})
	if err != nil {
		return nil, &UnavailableError{BaseURL: c.baseURL, Err: err}
	}

	status := map[string]interface{}{}
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, &UnavailableError{BaseURL: c.baseURL, Err: err}
	}
	return status, nil
}

func encodeMultipart(fileName string, content []byte, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	for _, key := range []string{"drug", "patient_id"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
