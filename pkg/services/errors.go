package services

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactUnavailable 学習済みモデルファイルが無い、または読み込めない
	ErrArtifactUnavailable = errors.New("model artifact unavailable")
	// ErrModelNotLoaded モデル未ロード状態での予測要求
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrUnknownCategory 学習時の語彙に無いカテゴリ値
	ErrUnknownCategory = errors.New("unknown category")
	// ErrMalformedInput 必須項目の欠落・数値不正
	ErrMalformedInput = errors.New("malformed input")
	// ErrBackendUnavailable リモート推論サーバーに到達できない
	ErrBackendUnavailable = errors.New("prediction backend unavailable")
	// ErrPredictionFailed 上記以外の推論時エラー
	ErrPredictionFailed = errors.New("prediction failed")
)

// UnknownCategoryError identifies which field carried the unseen value.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category for %s: %q", e.Field, e.Value)
}

func (e *UnknownCategoryError) Is(target error) bool { return target == ErrUnknownCategory }

// ErrorKind は呼び出し側（HTTP層・リモートミラー）へ伝えるエラー種別
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelNotLoaded), errors.Is(err, ErrArtifactUnavailable), errors.Is(err, ErrBackendUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	default:
		return "prediction_failed"
	}
}

// errorForKind is the inverse of ErrorKind for errors received from a remote mirror.
func errorForKind(kind string) error {
	switch kind {
	case "model_unavailable":
		return ErrModelNotLoaded
	case "unknown_category":
		return ErrUnknownCategory
	case "malformed_input":
		return ErrMalformedInput
	default:
		return ErrPredictionFailed
	}
}
