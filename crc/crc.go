// Package crc implements checksums used by MAVLink framing.
package crc

// X25 aka CRC-16/MCRF4XX, poly 0x1021 reflected.
const X25Init uint16 = 0xffff

func X25(crc uint16, data byte) uint16 {
	tmp := data ^ byte(crc)
	tmp ^= tmp << 4
	t := uint16(tmp)
	return (crc >> 8) ^ (t << 8) ^ (t << 3) ^ (t >> 4)
}

func X25_n(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = X25(crc, b)
	}
	return crc
}

// X25_reference is bitwise variant, kept to verify fast one.
func X25_reference(crc uint16, data byte) uint16 {
	crc ^= uint16(data)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0x8408
		} else {
			crc >>= 1
		}
	}
	return crc
}
