package domain

import (
	"fmt"
	"math"
	"strings"
)

// SponsorInfo is the structured result of LLM extraction.
// Construct it through NewSponsorInfo so every field is validated once.
type SponsorInfo struct {
	POCName               string
	OrgName               string
	EstimatedValueAmount  string
	ValueType             ValueType
	ValueDescription      string
	ConfidenceScore       float64
	PriorityLevel         PriorityLevel
	PriorityReasoning     string
	LastActionSummary     string
	NextActionStatus      NextActionStatus
	NextActionDescription string
}

// SponsorInfoInput is the unvalidated shape produced by an extractor.
type SponsorInfoInput struct {
	POCName               string
	OrgName               string
	EstimatedValueAmount  string
	ValueType             string
	ValueDescription      string
	ConfidenceScore       float64
	PriorityLevel         string
	PriorityReasoning     string
	LastActionSummary     string
	NextActionStatus      string
	NextActionDescription string
}

// NewSponsorInfo validates raw extraction output.
func NewSponsorInfo(in SponsorInfoInput) (*SponsorInfo, error) {
	if math.IsNaN(in.ConfidenceScore) || in.ConfidenceScore < 0 || in.ConfidenceScore > 1 {
		return nil, fmt.Errorf("confidence score %v outside [0,1]", in.ConfidenceScore)
	}

	valueType, err := ParseValueType(in.ValueType)
	if err != nil {
		return nil, err
	}

	level := PriorityNormal
	if strings.TrimSpace(in.PriorityLevel) != "" {
		if level, err = ParsePriorityLevel(in.PriorityLevel); err != nil {
			return nil, err
		}
	}

	action, err := ParseNextActionStatus(in.NextActionStatus)
	if err != nil {
		return nil, err
	}

	return &SponsorInfo{
		POCName:               strings.TrimSpace(in.POCName),
		OrgName:               strings.TrimSpace(in.OrgName),
		EstimatedValueAmount:  strings.TrimSpace(in.EstimatedValueAmount),
		ValueType:             valueType,
		ValueDescription:      strings.TrimSpace(in.ValueDescription),
		ConfidenceScore:       in.ConfidenceScore,
		PriorityLevel:         level,
		PriorityReasoning:     in.PriorityReasoning,
		LastActionSummary:     in.LastActionSummary,
		NextActionStatus:      action,
		NextActionDescription: strings.TrimSpace(in.NextActionDescription),
	}, nil
}
