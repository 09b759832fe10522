package session

import "fmt"

const (
	messageStartChannelTitle = ":microphone2: **録音と文字起こしを開始しました。**"
	messageStartChannelHint  = "-# 全員が退出すると自動で終了します。"

	messageStopChannelTitleFormat = ":pause_button:  **録音を終了しました。** %s"
)

func stopChannelTitle(reason string) string {
	return fmt.Sprintf(messageStopChannelTitleFormat, stopReasonDetail(reason))
}

func stopReasonDetail(reason string) string {
	switch reason {
	case ReasonParticipantsLeft:
		return "ボイスチャンネルに誰もいなくなりました。"
	case ReasonMaxDuration:
		return "セッションの最大制限時間に到達しました。"
	case ReasonConnectionLost:
		return "ボイス接続が失われました。"
	case ReasonBotRemoved:
		return "録音ボットが退出させられました。"
	case ReasonShutdown:
		return "録音サーバーが停止しました。"
	default:
		return "不明なエラーが発生しました。"
	}
}
