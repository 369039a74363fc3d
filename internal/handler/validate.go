package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/ja"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ja_translations "github.com/go-playground/validator/v10/translations/ja"

	"github.com/hitoshi/vocalearn/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 1 << 20

var fieldNameTranslations = map[string]string{
	"text":               "テキスト",
	"to":                 "翻訳先言語",
	"from":               "翻訳元言語",
	"name":               "名前",
	"description":        "説明",
	"icon":               "アイコン",
	"item_id":            "保存項目ID",
	"quality":            "評価値",
	"time_spent_seconds": "所要時間",
	"session_id":         "学習セッションID",
	"date":               "日付",
	"kind":               "種別",
}

// requestValidator はリクエストDTOの検証と日本語メッセージへの変換を行う。
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// newRequestValidator はJSONタグ名でフィールドを報告するバリデータを生成する。
func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	japanese := ja.New()
	uni := ut.New(japanese, japanese)
	trans, _ := uni.GetTranslator("ja")
	if err := ja_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(fmt.Sprintf("failed to register validator translations: %v", err))
	}

	register := func(tag, msg string) {
		_ = v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, translatedField(fe.Field()), fe.Param())
			return t
		})
	}
	register("required", "{0}は必須項目です。")
	register("max", "{0}は{1}文字以下で入力してください。")
	register("uuid", "{0}の形式が正しくありません。")

	return &requestValidator{validate: v, trans: trans}
}

func translatedField(field string) string {
	if name, ok := fieldNameTranslations[field]; ok {
		return name
	}
	return field
}

// Struct はreqを検証し、違反があればINVALID_INPUTのAPIErrorを返す。
func (rv *requestValidator) Struct(req any) error {
	err := rv.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewInvalidInputError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(rv.trans))
	}
	return model.NewInvalidInputError(strings.Join(msgs, " "))
}

// decodeAndValidate はJSONボディをdstに読み込んで検証する。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func (rv *requestValidator) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil {
		writeInvalidRequestBody(w)
		return false
	}
	if err := rv.Struct(dst); err != nil {
		handleServiceError(w, r, err)
		return false
	}
	return true
}
