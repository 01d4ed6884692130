package services

import (
	"fmt"
	"sort"

	"kicks-forecast-api/pkg/models"
)

// カテゴリ列（学習データの列名）
const (
	ColumnRetailer    = "Retailer"
	ColumnRegion      = "Region"
	ColumnProduct     = "Product"
	ColumnSalesMethod = "Sales Method"
)

// CategoricalColumns は特徴量ベクトル先頭に並ぶカテゴリ列の順序
var CategoricalColumns = []string{ColumnRetailer, ColumnRegion, ColumnProduct, ColumnSalesMethod}

// LabelEncoder カテゴリ値を整数コードへ変換する（語彙は学習時に固定）
type LabelEncoder struct {
	field string
	codes map[string]int
}

// FitLabelEncoder assigns codes 0..n-1 to the distinct values in sorted order.
func FitLabelEncoder(field string, values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)

	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &LabelEncoder{field: field, codes: codes}
}

// NewLabelEncoder restores an encoder from a persisted vocabulary.
func NewLabelEncoder(field string, vocabulary map[string]int) (*LabelEncoder, error) {
	used := make(map[int]string, len(vocabulary))
	codes := make(map[string]int, len(vocabulary))
	for class, code := range vocabulary {
		if code < 0 || code >= len(vocabulary) {
			return nil, fmt.Errorf("encoder %s: code %d for %q out of range", field, code, class)
		}
		if other, dup := used[code]; dup {
			return nil, fmt.Errorf("encoder %s: code %d assigned to both %q and %q", field, code, other, class)
		}
		used[code] = class
		codes[class] = code
	}
	return &LabelEncoder{field: field, codes: codes}, nil
}

// Encode returns the code for value or an *UnknownCategoryError.
func (e *LabelEncoder) Encode(value string) (int, error) {
	code, ok := e.codes[value]
	if !ok {
		return 0, &UnknownCategoryError{Field: e.field, Value: value}
	}
	return code, nil
}

// Classes は語彙をコード順で返す
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.codes))
	for class, code := range e.codes {
		out[code] = class
	}
	return out
}

// Vocabulary returns a copy of the class → code mapping.
func (e *LabelEncoder) Vocabulary() map[string]int {
	out := make(map[string]int, len(e.codes))
	for k, v := range e.codes {
		out[k] = v
	}
	return out
}

// EncoderSet カテゴリ列ごとのエンコーダ
type EncoderSet struct {
	encoders map[string]*LabelEncoder
}

// FitEncoderSet は学習レコードから4つのカテゴリ列のエンコーダを作成する
func FitEncoderSet(records []models.HistoricalRecord) *EncoderSet {
	set := &EncoderSet{encoders: make(map[string]*LabelEncoder, len(CategoricalColumns))}
	for _, col := range CategoricalColumns {
		values := make([]string, len(records))
		for i, r := range records {
			values[i] = categoryValue(r, col)
		}
		set.encoders[col] = FitLabelEncoder(col, values)
	}
	return set
}

// NewEncoderSet restores the set from persisted vocabularies; every categorical column is required.
func NewEncoderSet(vocabularies map[string]map[string]int) (*EncoderSet, error) {
	set := &EncoderSet{encoders: make(map[string]*LabelEncoder, len(vocabularies))}
	for _, col := range CategoricalColumns {
		vocab, ok := vocabularies[col]
		if !ok || len(vocab) == 0 {
			return nil, fmt.Errorf("encoder for %s missing", col)
		}
		enc, err := NewLabelEncoder(col, vocab)
		if err != nil {
			return nil, err
		}
		set.encoders[col] = enc
	}
	return set, nil
}

// Encode encodes value for field. Unknown fields and unknown values are both errors.
func (s *EncoderSet) Encode(field, value string) (int, error) {
	enc, ok := s.encoders[field]
	if !ok {
		return 0, fmt.Errorf("no encoder for field %q", field)
	}
	return enc.Encode(value)
}

// Encoder returns the encoder for field, or nil.
func (s *EncoderSet) Encoder(field string) *LabelEncoder {
	return s.encoders[field]
}

// Vocabularies は永続化用のプレーンなマッピングを返す
func (s *EncoderSet) Vocabularies() map[string]map[string]int {
	out := make(map[string]map[string]int, len(s.encoders))
	for col, enc := range s.encoders {
		out[col] = enc.Vocabulary()
	}
	return out
}

// categoryValue はレコードから列名に対応するカテゴリ値を取り出す
func categoryValue(r models.HistoricalRecord, col string) string {
	switch col {
	case ColumnRetailer:
		return r.Retailer
	case ColumnRegion:
		return r.Region
	case ColumnProduct:
		return r.Product
	case ColumnSalesMethod:
		return r.SalesMethod
	}
	return ""
}
