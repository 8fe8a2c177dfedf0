package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qingcloudhx/mqttcore/packet"
)

func TestDefaultValidatorAssignsClientID(t *testing.T) {
	connect := packet.NewConnectPacket()
	connect.ClientID = ""

	vctx := NewContext(connect, "1.2.3.4:5")

	require := DefaultValidator{}
	err := require.Validate(context.Background(), vctx)

	assert.NoError(t, err)
	assert.Equal(t, packet.Success, vctx.ReasonCode)
	assert.NotEmpty(t, vctx.AssignedClientIdentifier)
}

func TestDefaultValidatorKeepsExistingClientID(t *testing.T) {
	connect := packet.NewConnectPacket()
	connect.ClientID = "alice"

	vctx := NewContext(connect, "1.2.3.4:5")

	err := DefaultValidator{}.Validate(context.Background(), vctx)

	assert.NoError(t, err)
	assert.Empty(t, vctx.AssignedClientIdentifier)
}
