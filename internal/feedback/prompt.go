package feedback

import (
	"fmt"
	"strings"
)

const systemPrompt = `あなたは日本の就職面接の指導経験が豊富な面接官です。
候補者の回答の文字起こしと計測値をもとに、回答内容を評価してください。
必ず次の形式の JSON オブジェクトのみを返してください:
{"grade":"A〜Eのいずれか","content_score":0〜100の数値,"critique":"改善点を含む講評(300字以内)","summary":"回答の要約(100字以内)"}
計測値のスコアは 0〜100 で、高いほど良好です。`

func userPrompt(raw RawResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "質問: %s\n", orNone(raw.Question))
	if raw.Category != "" {
		fmt.Fprintf(&b, "カテゴリ: %s\n", raw.Category)
	}
	fmt.Fprintf(&b, "回答(文字起こし): %s\n\n", orNone(raw.Transcript))
	b.WriteString("計測値:\n")
	fmt.Fprintf(&b, "- 視線スコア: %.0f\n", raw.VideoMetrics.GazeScore*100)
	fmt.Fprintf(&b, "- 表情スコア: %.0f\n", raw.VideoMetrics.EmotionScore*100)
	if raw.VideoMetrics.Summary != "" {
		fmt.Fprintf(&b, "- 表情・視線の所見: %s\n", raw.VideoMetrics.Summary)
	}
	fmt.Fprintf(&b, "- 回答時間: %.1f 秒\n", raw.SpeechMetrics.DurationSec)
	fmt.Fprintf(&b, "- 話速: %.2f 文字/秒 (スコア %.0f)\n", raw.SpeechMetrics.CharsPerSec, raw.SpeechMetrics.SpeedScore*100)
	fmt.Fprintf(&b, "- 声量スコア: %.0f\n", raw.SpeechMetrics.VolumeScore*100)
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(なし)"
	}
	return s
}
