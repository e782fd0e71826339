package xcf

import "fmt"

// Tile data is run-length encoded one byte plane at a time: all first
// bytes of the tile's pixels, then all second bytes, and so on. Each plane
// is a sequence of packets introduced by an opcode:
//
//	0..126    a run of opcode+1 copies of the next byte
//	127       a 16-bit count, then the byte to repeat
//	128       a 16-bit count, then that many literal bytes
//	129..255  256-opcode literal bytes
const maxPacket = 32768

// rleEncode appends the encoding of pix, a tile of bpp-byte pixels, to dst.
func rleEncode(dst, pix []byte, bpp int) []byte {
	n := len(pix) / bpp
	for c := range bpp {
		at := func(i int) byte { return pix[i*bpp+c] }
		for i := 0; i < n; {
			run := 1
			for i+run < n && run < maxPacket && at(i+run) == at(i) {
				run++
			}
			if run > 1 {
				if run >= 128 {
					dst = append(dst, 127, byte(run>>8), byte(run))
				} else {
					dst = append(dst, byte(run-1))
				}
				dst = append(dst, at(i))
				i += run
				continue
			}

			j := i + 1
			for j < n && j-i < maxPacket && (j+1 >= n || at(j) != at(j+1)) {
				j++
			}
			if lit := j - i; lit >= 128 {
				dst = append(dst, 128, byte(lit>>8), byte(lit))
			} else {
				dst = append(dst, byte(256-lit))
			}
			for k := i; k < j; k++ {
				dst = append(dst, at(k))
			}
			i = j
		}
	}
	return dst
}

// rleDecode fills dst, a tile of bpp-byte pixels, from src. It returns the
// number of bytes of src consumed.
func rleDecode(dst, src []byte, bpp int) (int, error) {
	n := len(dst) / bpp
	p := 0
	corrupt := func(what string) (int, error) {
		return p, fmt.Errorf("%w: %s at byte %d of tile data", ErrCorrupt, what, p)
	}
	count := func(op int) (int, bool) {
		if op != 128 {
			return op, true
		}
		if p+2 > len(src) {
			return 0, false
		}
		v := int(src[p])<<8 | int(src[p+1])
		p += 2
		return v, true
	}

	for c := range bpp {
		for i := 0; i < n; {
			if p >= len(src) {
				return corrupt("data ends inside a plane")
			}
			op := int(src[p])
			p++
			if op >= 128 {
				length, ok := count(256 - op)
				if !ok {
					return corrupt("truncated count")
				}
				if i+length > n {
					return corrupt("literal packet overflows the tile")
				}
				if p+length > len(src) {
					return corrupt("truncated literal packet")
				}
				for k := range length {
					dst[(i+k)*bpp+c] = src[p+k]
				}
				p += length
				i += length
				continue
			}

			length, ok := count(op + 1)
			if !ok {
				return corrupt("truncated count")
			}
			if i+length > n {
				return corrupt("run overflows the tile")
			}
			if p >= len(src) {
				return corrupt("truncated run")
			}
			v := src[p]
			p++
			for k := range length {
				dst[(i+k)*bpp+c] = v
			}
			i += length
		}
	}
	return p, nil
}
