package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateCountry    string
	simulateAdvertiser string
	simulateName       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次节目变更并触发告警邮件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCountry == "" || simulateAdvertiser == "" {
			return errors.New("--country 与 --advertiser 不能为空")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateCountry, simulateAdvertiser, simulateName)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCountry, "country", "", "国家代码")
	simulateCmd.Flags().StringVar(&simulateAdvertiser, "advertiser", "", "广告主 ID")
	simulateCmd.Flags().StringVar(&simulateName, "name", "Simulated Advertiser", "广告主名称")
}
