package eval

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// #region json-float
// jsonFloat encodes non-finite values as the strings "+Inf", "-Inf" and
// "NaN", which encoding/json rejects as numbers. A zero-probability step
// makes BitsPerSymbol and Perplexity infinite.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", s, err)
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// #endregion json-float

// #region summary-json
type summaryJSON struct {
	Steps         int       `json:"steps"`
	Errors        int       `json:"errors"`
	ErrorRate     jsonFloat `json:"error_rate"`
	TotalAccuracy jsonFloat `json:"total_accuracy"`
	MeanAccuracy  jsonFloat `json:"mean_accuracy"`
	BitsPerSymbol jsonFloat `json:"bits_per_symbol"`
	Perplexity    jsonFloat `json:"perplexity"`
}

// MarshalJSON writes the summary with non-finite floats as strings.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Steps:         s.Steps,
		Errors:        s.Errors,
		ErrorRate:     jsonFloat(s.ErrorRate),
		TotalAccuracy: jsonFloat(s.TotalAccuracy),
		MeanAccuracy:  jsonFloat(s.MeanAccuracy),
		BitsPerSymbol: jsonFloat(s.BitsPerSymbol),
		Perplexity:    jsonFloat(s.Perplexity),
	})
}

// UnmarshalJSON accepts both plain numbers and the string forms written by
// MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Summary{
		Steps:         raw.Steps,
		Errors:        raw.Errors,
		ErrorRate:     float64(raw.ErrorRate),
		TotalAccuracy: float64(raw.TotalAccuracy),
		MeanAccuracy:  float64(raw.MeanAccuracy),
		BitsPerSymbol: float64(raw.BitsPerSymbol),
		Perplexity:    float64(raw.Perplexity),
	}
	return nil
}

// #endregion summary-json
