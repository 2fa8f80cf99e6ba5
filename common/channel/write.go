package channel

import (
	"encoding/binary"

	"github.com/sagernet/sing-cio/common/buf"
)

// The write family stages bytes only. Call Flush to publish them.

func WriteByte(c WriteChannel, value byte) error {
	buffer, err := c.WriteBuffer()
	if err != nil {
		return err
	}
	return buffer.WriteByte(value)
}

func WriteShort(c WriteChannel, value uint16) error {
	var data [2]byte
	binary.BigEndian.PutUint16(data[:], value)
	return WriteFully(c, data[:])
}

func WriteInt(c WriteChannel, value uint32) error {
	var data [4]byte
	binary.BigEndian.PutUint32(data[:], value)
	return WriteFully(c, data[:])
}

func WriteLong(c WriteChannel, value uint64) error {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], value)
	return WriteFully(c, data[:])
}

func WriteFully(c WriteChannel, data []byte) error {
	buffer, err := c.WriteBuffer()
	if err != nil {
		return err
	}
	_, err = buffer.Write(data)
	return err
}

func WriteString(c WriteChannel, value string) error {
	buffer, err := c.WriteBuffer()
	if err != nil {
		return err
	}
	_, err = buffer.WriteString(value)
	return err
}

// WriteChain moves the content of chain into the channel.
func WriteChain(c WriteChannel, chain *buf.Chain) error {
	buffer, err := c.WriteBuffer()
	if err != nil {
		return err
	}
	chain.MoveTo(buffer, -1)
	return nil
}
