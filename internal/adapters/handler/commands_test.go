package handler

import (
	"errors"
	"tarabot/internal/core/domain"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOverwriter struct {
	mock.Mock
}

func (m *MockOverwriter) ApplicationCommandBulkOverwrite(appID string, guildID string,
	commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID, commands)
	return commands, args.Error(0)
}

func TestRegisterCommands(t *testing.T) {
	chat := &MockCmdHandler{name: "chat", options: []domain.CommandOption{
		{Name: "prompt", Description: "What to ask", Required: true},
	}}
	help := &MockCmdHandler{name: "help"}

	reg := new(MockRegistry)
	reg.On("ListCommands").Return([]string{"chat", "help"})
	reg.On("Get", "chat").Return(chat, nil)
	reg.On("Get", "help").Return(help, nil)

	var got []*discordgo.ApplicationCommand
	ow := new(MockOverwriter)
	ow.On("ApplicationCommandBulkOverwrite", "app", "guild", mock.Anything).
		Run(func(args mock.Arguments) {
			got = args.Get(2).([]*discordgo.ApplicationCommand)
		}).
		Return(nil).Once()

	require.NoError(t, RegisterCommands(ow, "app", "guild", reg))

	require.Len(t, got, 2)
	assert.Equal(t, "chat", got[0].Name)
	assert.Equal(t, "the chat command", got[0].Description)
	require.Len(t, got[0].Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, got[0].Options[0].Type)
	assert.Equal(t, "prompt", got[0].Options[0].Name)
	assert.True(t, got[0].Options[0].Required)
	assert.Equal(t, "help", got[1].Name)
	assert.Empty(t, got[1].Options)
	ow.AssertExpectations(t)
}

func TestRegisterCommands_Fails(t *testing.T) {
	reg := new(MockRegistry)
	reg.On("ListCommands").Return([]string{})

	ow := new(MockOverwriter)
	ow.On("ApplicationCommandBulkOverwrite", "app", "", mock.Anything).Return(errors.New("401")).Once()

	require.Error(t, RegisterCommands(ow, "app", "", reg))
}
