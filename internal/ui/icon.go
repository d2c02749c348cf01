package ui

// iconBytes is a 16x16 PNG.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x2a, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0x18, 0x3e, 0xe0,
	0x8e, 0x86, 0xc6, 0x7f, 0x52, 0x30, 0x6d, 0x0d, 0x00, 0x01, 0x8a, 0x0d,
	0x80, 0x01, 0x8a, 0x0d, 0xc0, 0x65, 0x10, 0xfd, 0x0c, 0x18, 0x98, 0x40,
	0x1c, 0x98, 0x74, 0x30, 0x74, 0x01, 0x00, 0x76, 0xde, 0x24, 0xea, 0x76,
	0xcd, 0x25, 0x88, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}
