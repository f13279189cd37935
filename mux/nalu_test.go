package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAnnexB_FourAndThreeByteStartCodes(t *testing.T) {
	buf := append([]byte{0, 0, 0, 1}, 0x67, 0x01, 0x02) // 4-byte start code, SPS-ish
	buf = append(buf, 0, 0, 1, 0x68, 0x03)               // 3-byte start code, PPS-ish

	nalus := splitAnnexB(buf)
	require.Len(t, nalus, 2)
	assert.Equal(t, []byte{0x67, 0x01, 0x02}, nalus[0])
	assert.Equal(t, []byte{0x68, 0x03}, nalus[1])
}

func TestSplitAnnexB_EmptyBetweenStartCodesDropped(t *testing.T) {
	buf := []byte{0, 0, 0, 1, 0, 0, 0, 1, 0x67, 0x01}
	nalus := splitAnnexB(buf)
	require.Len(t, nalus, 1)
	assert.Equal(t, []byte{0x67, 0x01}, nalus[0])
}

func TestH264NALUType_MasksLowFiveBits(t *testing.T) {
	assert.Equal(t, byte(7), h264NALUType([]byte{0x67}))
	assert.Equal(t, byte(5), h264NALUType([]byte{0x65}))
	assert.Equal(t, byte(0), h264NALUType(nil))
}

func TestH265NALUType_MasksBitsOneToSix(t *testing.T) {
	// VPS: nal_unit_type = 32 -> first byte = 32<<1 = 0x40
	assert.Equal(t, byte(32), h265NALUType([]byte{0x40, 0x01}))
}

func TestToAVCC_PrefixesFourByteLengths(t *testing.T) {
	nalus := [][]byte{{0x65, 0xAA}, {0x41, 0xBB, 0xCC}}
	out := toAVCC(nalus)
	assert.Equal(t, []byte{0, 0, 0, 2, 0x65, 0xAA, 0, 0, 0, 3, 0x41, 0xBB, 0xCC}, out)
}

func TestBuildAVCDecoderConfigurationRecord_FieldLayout(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F, 0xAA}
	pps := []byte{0x68, 0xCE}

	rec := buildAVCDecoderConfigurationRecord(sps, pps)
	require.GreaterOrEqual(t, len(rec), 6)
	assert.Equal(t, byte(0x01), rec[0])
	assert.Equal(t, sps[1], rec[1])
	assert.Equal(t, sps[2], rec[2])
	assert.Equal(t, sps[3], rec[3])
	assert.Equal(t, byte(0xFF), rec[4])
	assert.Equal(t, byte(0xE1), rec[5])

	spsLen := int(rec[6])<<8 | int(rec[7])
	assert.Equal(t, len(sps), spsLen)
	assert.Equal(t, sps, rec[8:8+spsLen])

	afterSPS := rec[8+spsLen:]
	assert.Equal(t, byte(0x01), afterSPS[0])
	ppsLen := int(afterSPS[1])<<8 | int(afterSPS[2])
	assert.Equal(t, len(pps), ppsLen)
	assert.Equal(t, pps, afterSPS[3:3+ppsLen])
}

func TestBuildHEVCDecoderConfigurationRecord_CarriesThreeArrays(t *testing.T) {
	vps, sps, pps := []byte{0x40, 0x01}, []byte{0x42, 0x01}, []byte{0x44, 0x01}
	rec := buildHEVCDecoderConfigurationRecord(vps, sps, pps)
	require.NotEmpty(t, rec)
	assert.Equal(t, byte(0x01), rec[0])

	fixedHeaderLen := 23
	assert.Equal(t, byte(0x03), rec[fixedHeaderLen-1]) // numOfArrays

	arrays := rec[fixedHeaderLen:]
	for _, nalu := range [][]byte{vps, sps, pps} {
		require.GreaterOrEqual(t, len(arrays), 5)
		numNalus := arrays[2]
		assert.Equal(t, byte(1), numNalus)
		naluLen := int(arrays[3])<<8 | int(arrays[4])
		assert.Equal(t, len(nalu), naluLen)
		assert.Equal(t, nalu, arrays[5:5+naluLen])
		arrays = arrays[5+naluLen:]
	}
	assert.Empty(t, arrays)
}
