package platform

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// FileStem 返回路径的文件名（不含扩展名）
//
// 同时识别 `\` 和 `/` 分隔符，因此在任何平台上都能处理 Windows 路径。
// 例如 `C:\apps\a.exe` 返回 "a"。
func FileStem(path string) string {
	name := path
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}

// BGRAToRGBA 原地交换 B 和 R 通道
//
// GDI 的 32 位 DIB 按 BGRA 存储像素，image.RGBA 需要 RGBA。
func BGRAToRGBA(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

// ARGBToImage 把 0xAARRGGBB 像素数组转换为图像
//
// X11 的 _NET_WM_ICON 使用这种非预乘格式。
//
// Parameters:
//   - width, height: 图像尺寸
//   - pixels: 按行排列的像素，长度不足时返回错误
func ARGBToImage(width, height int, pixels []uint32) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(pixels) < width*height {
		return nil, fmt.Errorf("invalid ARGB icon %dx%d with %d pixels", width, height, len(pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, p := range pixels[:width*height] {
		o := i * 4
		img.Pix[o] = byte(p >> 16)
		img.Pix[o+1] = byte(p >> 8)
		img.Pix[o+2] = byte(p)
		img.Pix[o+3] = byte(p >> 24)
	}
	return img, nil
}

// EncodeIcon 把图像缩放到 size×size 后编码为 PNG
//
// Parameters:
//   - img: 源图像
//   - size: 目标边长，<=0 时保持原尺寸
//
// Returns:
//   - []byte: PNG 数据
//   - error: 编码失败时返回错误
func EncodeIcon(img image.Image, size int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil icon image")
	}

	src := img
	if size > 0 && (img.Bounds().Dx() != size || img.Bounds().Dy() != size) {
		dst := image.NewNRGBA(image.Rect(0, 0, size, size))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}
