package bits

import "sync"

// CRC tables, built on first use.
var (
	crcOnce    sync.Once
	crc8Table  [256]uint8
	crc16Table [256]uint16
)

// initCRC populates the CRC-8 (polynomial x^8 + x^2 + x^1 + x^0) and CRC-16
// (polynomial x^16 + x^15 + x^2 + x^0) lookup tables.
func initCRC() {
	crcOnce.Do(func() {
		for i := 0; i < 256; i++ {
			t8 := uint32(i)
			t16 := uint32(i) << 8
			for j := 0; j < 8; j++ {
				t8 = t8<<1 ^ (t8>>7)*0x107
				t16 = t16<<1 ^ (t16>>15)*0x18005
			}
			crc8Table[i] = uint8(t8)
			crc16Table[i] = uint16(t16)
		}
	})
}

// Checksum8 returns the CRC-8 of p, as used by FLAC frame headers.
func Checksum8(p []byte) uint8 {
	initCRC()
	var crc uint8
	for _, b := range p {
		crc = crc8Table[crc^b]
	}
	return crc
}

// Checksum16 returns the CRC-16 of p, as used by FLAC frame footers.
func Checksum16(p []byte) uint16 {
	initCRC()
	var crc uint16
	for _, b := range p {
		crc = crc16Table[byte(crc>>8)^b] ^ crc<<8
	}
	return crc
}
