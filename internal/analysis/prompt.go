package analysis

const productExtractionSystemPrompt = `あなたは商品の値札を解析する専門家です。OCRで読み取ったテキストから商品名と税込価格を抽出してください。

出力形式（JSON）:
{
  "name": "商品名",
  "price": 税込価格（数値のみ）
}

注意事項:
- 商品名は簡潔に（例：「やわらかパイ」）
- 価格は税込価格のみを抽出（例：138）
- 価格が複数ある場合は最も目立つ価格を選択
- 商品名や価格が不明確な場合はnullを返す`

func productExtractionUserPrompt(ocrText string) string {
	return "以下のOCRテキストから商品名と税込価格を抽出してください:\n\n" + ocrText
}
