package recipe

import "fmt"

const recipeParseSystemPrompt = `あなたはレシピから材料を抽出する専門家です。
レシピテキストから「料理名（レシピ名）」と「材料リスト」を抽出し、JSONで返してください。

抽出ルール:
1. title: レシピの料理名を簡潔に抽出する。不明な場合は「レシピから取り込み」とする。
2. ingredients: 材料名と分量を正確に抽出する。調味料（醤油、みりん、砂糖等）も含めて全ての材料を抽出すること。
3. 曖昧な分量（「適量」「少々」「ひとつまみ」等）は quantity を null にする。
4. 材料を正規化する（全角半角の統一、余分な空白削除、一般的な表記への統一）。

出力形式 (JSON):
{
  "title": "肉じゃが",
  "ingredients": [
    {
      "name": "玉ねぎ",
      "quantity": "1個",
      "normalizedName": "玉ねぎ",
      "confidence": 1.0,
      "notes": null
    }
  ]
}`

func recipeParseUserPrompt(recipeText string) string {
	return "以下のレシピテキストから材料を抽出してください:\n\n" + recipeText
}

const summarizeSystemPrompt = `あなたは商品名を簡潔に要約する専門家です。
以下のルールに従って商品名を要約してください：

1. メーカー名、商品名のみを抽出
2. 不要な説明文・キーワードを削除（内容量、用途説明、キャッチフレーズ、包装説明、配送関連など）
3. 商品名の一部として必要なキーワードは保持（味の種類、形状、種類など）
4. 最大20文字以内に収める
5. 日本語で回答`

func summarizeUserPrompt(originalName string) string {
	return "以下の商品名を要約してください：\n" + originalName
}

const similaritySystemPrompt = `あなたは買い物リストの整理ヘルパーです。2つの材料が同じ食材を指しているかどうかを判定してください。判定は "true" または "false" のみで返答してください。`

func similarityUserPrompt(name1, name2 string) string {
	return fmt.Sprintf("「%s」と「%s」は同じ食材ですか？", name1, name2)
}
