package platform

import (
	"encoding/binary"
	"fmt"
)

// translationTableBlock 版本资源中声明语言和代码页的子块
const translationTableBlock = `\VarFileInfo\Translation`

// translation 版本资源翻译表的一项
type translation struct {
	Language uint16
	CodePage uint16
}

// parseTranslations 解析 \VarFileInfo\Translation 的内容
//
// 每项是两个小端 uint16：语言 ID 和代码页。
func parseTranslations(buf []byte) []translation {
	out := make([]translation, 0, len(buf)/4)
	for i := 0; i+4 <= len(buf); i += 4 {
		out = append(out, translation{
			Language: binary.LittleEndian.Uint16(buf[i:]),
			CodePage: binary.LittleEndian.Uint16(buf[i+2:]),
		})
	}
	return out
}

// descriptionSubBlock 返回某个翻译下 FileDescription 的查询路径
func descriptionSubBlock(t translation) string {
	return fmt.Sprintf(`\StringFileInfo\%04x%04x\FileDescription`, t.Language, t.CodePage)
}
